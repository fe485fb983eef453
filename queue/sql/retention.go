package sql

import (
	"context"
	"time"

	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/uptrace/bun"
)

// Retention implements queue.Retention using a SQL backend.
//
// Retention deletes rows directly from the jobs table and only ever
// targets Completed or Cancelled status; DeadLetter jobs are never a
// valid target because their row backs a permanent ArchiveEntry.
type Retention struct {
	db *bun.DB
}

// NewRetention creates a new SQL-backed Retention.
func NewRetention(db *bun.DB) *Retention {
	return &Retention{db: db}
}

// Purge deletes jobs matching status and, if before is non-nil, whose
// UpdatedAt is at or before *before.
func (r *Retention) Purge(ctx context.Context, status job.Status, before *time.Time) (int64, error) {
	if status != job.Completed && status != job.Cancelled {
		return 0, queue.ErrBadStatus
	}
	query := r.db.NewDelete().Model((*jobModel)(nil)).Where("status = ?", status)
	if before != nil {
		query = query.Where("updated_at <= ?", before)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return getAffected(res), nil
}
