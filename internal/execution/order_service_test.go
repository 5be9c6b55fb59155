package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
	"github.com/inspire-tradequest/trade-quest/internal/pricefeed"
	"github.com/inspire-tradequest/trade-quest/internal/storage"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type flakyKV struct {
	*storage.MemoryKV
	mu   sync.Mutex
	fail bool
}

func (f *flakyKV) SetMany(ctx context.Context, ns string, values map[string]string) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryKV.SetMany(ctx, ns, values)
}

type fixture struct {
	svc   *OrderService
	board *pricefeed.Board
	kv    *flakyKV
	store *storage.Adapter
}

func newFixture(t *testing.T, policy ShortPolicy) *fixture {
	t.Helper()
	kv := &flakyKV{MemoryKV: storage.NewMemoryKV()}
	store := storage.NewAdapter(kv, 10000)
	board := pricefeed.NewBoard()
	f := &fixture{
		svc:   NewOrderService(store, board, Config{InitialCapital: 10000, ShortPolicy: policy}, discardLogger),
		board: board,
		kv:    kv,
		store: store,
	}
	f.quote(t, "AAPL", 175.42)
	f.quote(t, "BTC", 61245.30)
	return f
}

func (f *fixture) quote(t *testing.T, symbol string, price float64) {
	t.Helper()
	require.NoError(t, f.board.Publish(context.Background(), domain.PriceTick{Symbol: symbol, Price: price, Timestamp: time.Now()}))
}

func TestPlaceAndCloseOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()

	res, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "aapl", Side: domain.SideBuy, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Position.Symbol)
	assert.Equal(t, "Apple Inc.", res.Position.Name)
	assert.InDelta(t, 9122.90, res.Account.CashBalance, 1e-9)
	assert.InDelta(t, 10000.0, res.Account.TotalValue, 1e-9)

	f.quote(t, "AAPL", 180.00)
	acct, err := f.svc.Account(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 10022.90, acct.TotalValue, 1e-9)
	assert.InDelta(t, 0.229, acct.TotalReturnPercent, 1e-9)

	closed, err := f.svc.ClosePosition(ctx, user, res.Position.ID)
	require.NoError(t, err)
	assert.InDelta(t, 22.90, *closed.Position.RealizedProfit, 1e-9)
	assert.InDelta(t, 10022.90, closed.Account.CashBalance, 1e-9)
	assert.Empty(t, closed.Account.OpenPositions)

	_, err = f.svc.ClosePosition(ctx, user, res.Position.ID)
	assert.ErrorIs(t, err, domain.ErrPositionAlreadyClosed)

	state, found, err := f.store.Load(ctx, user)
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 10022.90, state.CashBalance, 1e-9)
	require.Len(t, state.Positions, 1)
	assert.Equal(t, domain.StatusClosed, state.Positions[0].Status)
}

func TestSessionRestoredFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()

	res, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "BTC", Side: domain.SideSell, Quantity: 0.05})
	require.NoError(t, err)

	fresh := NewOrderService(f.store, f.board, Config{InitialCapital: 10000, ShortPolicy: ShortAllow}, discardLogger)
	positions, err := fresh.Positions(ctx, user, domain.StatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, res.Position.ID, positions[0].ID)

	acct, err := fresh.Account(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 13062.265, acct.CashBalance, 1e-9)
}

func TestRejectedOrdersDoNotPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortDeny)
	user := uuid.New()

	_, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "BTC", Side: domain.SideBuy, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "BTC", Side: domain.SideSell, Quantity: 0.01})
	assert.ErrorIs(t, err, domain.ErrShortSellingDisabled)

	_, err = f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "DOGE", Side: domain.SideBuy, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, found, err := f.store.Load(ctx, user)
	require.NoError(t, err)
	assert.False(t, found)

	acct, err := f.svc.Account(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acct.CashBalance)
}

func TestOverflowingOrderLeavesAccountUsable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()

	_, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "BTC", Side: domain.SideSell, Quantity: 1e305})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	acct, err := f.svc.Account(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acct.CashBalance)
	assert.Equal(t, 10000.0, acct.TotalValue)

	_, err = f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1})
	require.NoError(t, err)
	state, found, err := f.store.Load(ctx, user)
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 10000-175.42, state.CashBalance, 1e-9)
}

func TestCloseAtNonFiniteQuoteIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()

	res, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1})
	require.NoError(t, err)

	f.quote(t, "AAPL", math.Inf(1))
	_, err = f.svc.ClosePosition(ctx, user, res.Position.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	f.quote(t, "AAPL", 180)
	closed, err := f.svc.ClosePosition(ctx, user, res.Position.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10000-175.42+180, closed.Account.CashBalance, 1e-9)
}

func TestConcurrentFirstLoadsShareOneSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	positions, err := f.svc.Positions(ctx, user, domain.StatusOpen)
	require.NoError(t, err)
	assert.Len(t, positions, 8)
}

func TestPriceUnavailable(t *testing.T) {
	f := newFixture(t, ShortAllow)
	_, err := f.svc.PlaceOrder(context.Background(), uuid.New(), OrderRequest{Symbol: "TSLA", Side: domain.SideBuy, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPersistFailureKeepsStateInMemory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()
	f.kv.fail = true

	res, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrPersistenceWriteFailed)
	require.NotNil(t, res)
	assert.InDelta(t, 10000-175.42, res.Account.CashBalance, 1e-9)

	acct, err := f.svc.Account(ctx, user)
	require.NoError(t, err)
	assert.Len(t, acct.OpenPositions, 1)
}

func TestCorruptStateStartsFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()
	require.NoError(t, f.kv.MemoryKV.SetMany(ctx, storage.LedgerNamespace(user), map[string]string{
		storage.KeyTrades:  "{{{",
		storage.KeyAccount: "{}",
	}))

	acct, err := f.svc.Account(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acct.CashBalance)
	assert.Empty(t, acct.OpenPositions)
}

func TestStaleQuotesFallBackToEntryPrice(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	store := storage.NewAdapter(kv, 10000)
	user := uuid.New()
	require.NoError(t, store.Save(ctx, user, domain.LedgerState{
		CashBalance: 9808.0,
		Positions: []domain.Position{{
			ID: uuid.New(), Symbol: "TSLA", Name: "Tesla Inc.", Side: domain.SideBuy,
			EntryPrice: 192.0, Quantity: 1, Status: domain.StatusOpen,
		}},
	}))

	svc := NewOrderService(store, pricefeed.NewBoard(), Config{InitialCapital: 10000}, discardLogger)
	acct, err := svc.Account(ctx, user)
	require.NoError(t, err)
	assert.True(t, acct.PricesStale)
	assert.InDelta(t, 10000.0, acct.TotalValue, 1e-9)
}

func TestAccountListenerAndSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ShortAllow)
	user := uuid.New()

	var got []Account
	f.svc.OnAccountChange(func(id uuid.UUID, a Account) {
		assert.Equal(t, user, id)
		got = append(got, a)
	})

	_, err := f.svc.PlaceOrder(ctx, user, OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].OpenPositions, 1)

	snaps := f.svc.Snapshots()
	require.Contains(t, snaps, user)
	assert.Len(t, snaps[user].Positions, 1)
}
