package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/uptrace/bun"
)

// Ingestor implements queue.Ingestor using a SQL backend.
//
// Deduplication relies on the partial unique index over
// (queue, active_idempotency_key): a conflicting insert means an
// active (pending, scheduled or processing) job with the same key
// already exists, in which case Ingest looks it up and returns its id
// with deduplicated=true instead of failing. A key whose only prior
// owner has since reached a terminal state is free to reuse, since
// that job's active_idempotency_key was cleared on transition.
type Ingestor struct {
	db *bun.DB
}

// NewIngestor creates a new SQL-backed Ingestor.
func NewIngestor(db *bun.DB) *Ingestor {
	return &Ingestor{db: db}
}

// Ingest inserts spec as a new job, or resolves to the existing job id
// if one was already ingested under the same (Queue, IdempotencyKey).
func (i *Ingestor) Ingest(ctx context.Context, spec job.Spec, delay time.Duration) (uuid.UUID, bool, error) {
	model := fromSpec(spec, delay)
	_, err := i.db.NewInsert().Model(model).Exec(ctx)
	if err == nil {
		return model.Id, false, nil
	}
	if spec.IdempotencyKey == "" || !isUniqueViolation(err) {
		return uuid.UUID{}, false, err
	}
	var existing jobModel
	selErr := i.db.NewSelect().
		Model(&existing).
		Where("queue = ? AND active_idempotency_key = ?", spec.Queue, spec.IdempotencyKey).
		Scan(ctx)
	if selErr != nil {
		if errors.Is(selErr, sql.ErrNoRows) {
			return uuid.UUID{}, false, err
		}
		return uuid.UUID{}, false, selErr
	}
	return existing.Id, true, nil
}
