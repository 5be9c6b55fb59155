package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

type failingKV struct {
	*MemoryKV
	setErr error
	getErr error
}

func (f *failingKV) SetMany(ctx context.Context, ns string, values map[string]string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryKV.SetMany(ctx, ns, values)
}

func (f *failingKV) Get(ctx context.Context, ns, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.MemoryKV.Get(ctx, ns, key)
}

func sampleState() domain.LedgerState {
	opened := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	closedAt := opened.Add(time.Hour)
	profit := 22.9
	exit := 180.0
	return domain.LedgerState{
		CashBalance: 10022.9,
		Positions: []domain.Position{
			{
				ID: uuid.New(), Symbol: "AAPL", Name: "Apple Inc.", Side: domain.SideBuy,
				EntryPrice: 175.42, Quantity: 5, OpenedAt: opened, Status: domain.StatusClosed,
				RealizedProfit: &profit, ExitPrice: &exit, ClosedAt: &closedAt,
			},
			{
				ID: uuid.New(), Symbol: "BTC", Name: "Bitcoin", Side: domain.SideSell,
				EntryPrice: 61245.3, Quantity: 0.05, OpenedAt: opened, Status: domain.StatusOpen,
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryKV(), 10000)
	user := uuid.New()
	state := sampleState()

	require.NoError(t, a.Save(ctx, user, state))

	got, found, err := a.Load(ctx, user)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, state, got)
}

func TestLoadEmptyReturnsDefault(t *testing.T) {
	a := NewAdapter(NewMemoryKV(), 10000)

	got, found, err := a.Load(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 10000.0, got.CashBalance)
	assert.Empty(t, got.Positions)
}

func TestLoadCorruptFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		records map[string]string
	}{
		{name: "garbage trades", records: map[string]string{KeyTrades: "{not json", KeyAccount: `{"schema_version":1,"cash_balance":5}`}},
		{name: "garbage account", records: map[string]string{KeyTrades: `{"schema_version":1,"positions":[]}`, KeyAccount: "NaN?"}},
		{name: "future version", records: map[string]string{KeyTrades: `{"schema_version":9,"positions":[]}`, KeyAccount: `{"schema_version":9,"cash_balance":5}`}},
		{name: "only account", records: map[string]string{KeyAccount: `{"schema_version":1,"cash_balance":5}`}},
		{name: "unknown side", records: map[string]string{
			KeyTrades:  `{"schema_version":1,"positions":[{"id":"` + uuid.NewString() + `","symbol":"X","side":"hold","entry_price":1,"quantity":1,"status":"open"}]}`,
			KeyAccount: `{"schema_version":1,"cash_balance":5}`,
		}},
		{name: "open position with profit", records: map[string]string{
			KeyTrades:  `{"schema_version":1,"positions":[{"id":"` + uuid.NewString() + `","symbol":"X","side":"buy","entry_price":1,"quantity":1,"status":"open","realized_profit":3}]}`,
			KeyAccount: `{"schema_version":1,"cash_balance":5}`,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := NewMemoryKV()
			user := uuid.New()
			require.NoError(t, kv.SetMany(ctx, LedgerNamespace(user), tt.records))

			got, found, err := NewAdapter(kv, 10000).Load(ctx, user)
			assert.ErrorIs(t, err, domain.ErrPersistenceReadCorrupt)
			assert.False(t, found)
			assert.Equal(t, 10000.0, got.CashBalance)
			assert.Empty(t, got.Positions)
		})
	}
}

func TestLoadMigratesBrowserRecords(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	user := uuid.New()
	require.NoError(t, kv.SetMany(ctx, LedgerNamespace(user), map[string]string{
		KeyTrades: `[
			{"id":"1714567300000","symbol":"BTC","name":"Bitcoin","type":"sell","price":61245.3,"quantity":0.05,"timestamp":"2024-05-01T12:01:40.000Z","status":"open"},
			{"id":"1714567200000","symbol":"AAPL","name":"Apple Inc.","type":"buy","price":175.42,"quantity":5,"timestamp":"2024-05-01T12:00:00.000Z","status":"closed","profit":22.9}
		]`,
		KeyAccount: `13085.165`,
	}))

	got, found, err := NewAdapter(kv, 10000).Load(ctx, user)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 13085.165, got.CashBalance)
	require.Len(t, got.Positions, 2)

	aapl := got.Positions[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, domain.SideBuy, aapl.Side)
	assert.Equal(t, domain.StatusClosed, aapl.Status)
	require.NotNil(t, aapl.RealizedProfit)
	assert.Equal(t, 22.9, *aapl.RealizedProfit)
	assert.Equal(t, legacyID("1714567200000"), aapl.ID)

	btc := got.Positions[1]
	assert.Equal(t, domain.SideSell, btc.Side)
	assert.Nil(t, btc.RealizedProfit)
}

func TestSaveFailureIsReported(t *testing.T) {
	kv := &failingKV{MemoryKV: NewMemoryKV(), setErr: errors.New("quota exceeded")}
	err := NewAdapter(kv, 10000).Save(context.Background(), uuid.New(), sampleState())
	assert.ErrorIs(t, err, domain.ErrPersistenceWriteFailed)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestLoadBackendFailure(t *testing.T) {
	kv := &failingKV{MemoryKV: NewMemoryKV(), getErr: errors.New("connection refused")}
	got, found, err := NewAdapter(kv, 10000).Load(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.False(t, found)
	assert.Equal(t, 10000.0, got.CashBalance)
}

func TestMemoryKVCreate(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Create(ctx, "users", "a@b.c", "1"))
	assert.ErrorIs(t, kv.Create(ctx, "users", "a@b.c", "2"), domain.ErrAlreadyExists)

	v, err := kv.Get(ctx, "users", "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
