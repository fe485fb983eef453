package sql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/uptrace/bun"
)

// Observer implements queue.Observer using a SQL backend.
type Observer struct {
	db *bun.DB
}

// NewObserver creates a new SQL-backed Observer.
func NewObserver(db *bun.DB) *Observer {
	return &Observer{db: db}
}

// Get retrieves a job by its identifier, or (nil, nil) if none exists.
func (o *Observer) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var ret jobModel
	err := o.db.NewSelect().
		Model(&ret).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ret.toJob(), nil
}

// GetByIdempotencyKey returns the active (pending, scheduled or
// processing) job enqueued under (queue, key), or (nil, nil) if none
// exists. A key is only ever active for one job at a time; once that
// job reaches a terminal state the key is free for reuse by a new one.
func (o *Observer) GetByIdempotencyKey(ctx context.Context, queueName, key string) (*job.Job, error) {
	var ret jobModel
	err := o.db.NewSelect().
		Model(&ret).
		Where("queue = ? AND active_idempotency_key = ?", queueName, key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ret.toJob(), nil
}

// List returns jobs matching filter, newest-created first.
func (o *Observer) List(ctx context.Context, filter queue.ListFilter) ([]*job.Job, error) {
	query := o.db.NewSelect().Model((*jobModel)(nil)).Order("created_at DESC")
	if filter.Queue != "" {
		query = query.Where("queue = ?", filter.Queue)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != 0 {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Tag != "" {
		// Tags is a jsonb array column; json_each expands it so a plain
		// equality check can be used without a dedicated tags table.
		query = query.Where("EXISTS (SELECT 1 FROM json_each(tags) WHERE json_each.value = ?)", filter.Tag)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query = query.Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var models []*jobModel
	if err := query.Scan(ctx, &models); err != nil {
		return nil, err
	}
	jobs := make([]*job.Job, len(models))
	for i, m := range models {
		jobs[i] = m.toJob()
	}
	return jobs, nil
}
