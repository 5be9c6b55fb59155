package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string
}

func (m *memWriter) Put(_ context.Context, key string, data io.Reader, _ string) error {
	if m.failKey != "" && key == m.failKey {
		return errors.New("access denied")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

type staticSource map[uuid.UUID]domain.LedgerState

func (s staticSource) Snapshots() map[uuid.UUID]domain.LedgerState { return s }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSnapshotJobUploadsEachLedger(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	src := staticSource{
		a: {CashBalance: 9000},
		b: {CashBalance: 12000},
	}
	w := &memWriter{objects: map[string][]byte{}}
	job := NewSnapshotJob(src, w, "ledgers", quiet)
	job.now = func() time.Time { return time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC) }

	require.NoError(t, job.RunContext(context.Background()))
	require.Len(t, w.objects, 2)

	raw, ok := w.objects["ledgers/"+a.String()+"/20240501T130405Z.json"]
	require.True(t, ok)
	var doc snapshotDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, a, doc.UserID)
	assert.Equal(t, 9000.0, doc.State.CashBalance)
}

func TestSnapshotJobContinuesPastFailures(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	w := &memWriter{objects: map[string][]byte{}, failKey: "ledgers/" + a.String() + "/20240501T000000Z.json"}
	job := NewSnapshotJob(staticSource{a: {}, b: {}}, w, "ledgers", quiet)
	job.now = func() time.Time { return at }

	err := job.RunContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Len(t, w.objects, 1)
}

func TestSnapshotJobNothingLoaded(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	job := NewSnapshotJob(staticSource{}, w, "ledgers", quiet)
	assert.NoError(t, job.Run())
	assert.Empty(t, w.objects)
	assert.Equal(t, "ledger_snapshot", job.Name())
}
