package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

const uploadTimeout = 2 * time.Minute

type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// SnapshotSource is satisfied by the order service.
type SnapshotSource interface {
	Snapshots() map[uuid.UUID]domain.LedgerState
}

type snapshotDoc struct {
	UserID  uuid.UUID          `json:"user_id"`
	TakenAt time.Time          `json:"taken_at"`
	State   domain.LedgerState `json:"state"`
}

// SnapshotJob writes every loaded ledger to {prefix}/{userID}/{timestamp}.json.
type SnapshotJob struct {
	source SnapshotSource
	writer BlobWriter
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewSnapshotJob(source SnapshotSource, writer BlobWriter, prefix string, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{source: source, writer: writer, prefix: prefix, logger: logger, now: time.Now}
}

func (j *SnapshotJob) Name() string { return "ledger_snapshot" }

func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	return j.RunContext(ctx)
}

// RunContext uploads all snapshots, continuing past individual failures, and
// returns the joined errors.
func (j *SnapshotJob) RunContext(ctx context.Context) error {
	snaps := j.source.Snapshots()
	takenAt := j.now().UTC()

	ids := make([]uuid.UUID, 0, len(snaps))
	for id := range snaps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })

	var errs []error
	uploaded := 0
	for _, id := range ids {
		data, err := json.Marshal(snapshotDoc{UserID: id, TakenAt: takenAt, State: snaps[id]})
		if err != nil {
			errs = append(errs, fmt.Errorf("encode snapshot %s: %w", id, err))
			continue
		}
		if err := j.writer.Put(ctx, j.key(id, takenAt), bytes.NewReader(data), "application/json"); err != nil {
			errs = append(errs, err)
			continue
		}
		uploaded++
	}

	j.logger.Info("ledger snapshots archived", "uploaded", uploaded, "failed", len(errs))
	return errors.Join(errs...)
}

func (j *SnapshotJob) key(id uuid.UUID, at time.Time) string {
	return path.Join(j.prefix, id.String(), at.Format("20060102T150405Z")+".json")
}
