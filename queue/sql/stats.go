package sql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/renderqueue/core/job"
	"github.com/uptrace/bun"
)

// Stats implements queue.Stats using a SQL backend.
//
// Refresh recomputes every queue's aggregate row in a single pass;
// Get/List only ever read the queue_stats table, never the jobs table
// directly, keeping reads cheap regardless of job table size.
type Stats struct {
	db *bun.DB
}

// NewStats creates a new SQL-backed Stats.
func NewStats(db *bun.DB) *Stats {
	return &Stats{db: db}
}

type countRow struct {
	Queue  string
	Status job.Status
	N      uint64
}

type timingRow struct {
	Queue               string
	OldestPendingAgeMs  int64
	AvgWaitTimeMs       int64
	AvgProcessingTimeMs int64
}

// Refresh recomputes the queue_stats table from current jobs state.
func (s *Stats) Refresh(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var counts []countRow
		err := tx.NewSelect().
			Model((*jobModel)(nil)).
			ColumnExpr("queue, status, count(*) AS n").
			Group("queue", "status").
			Scan(ctx, &counts)
		if err != nil {
			return err
		}

		now := time.Now()
		var timings []timingRow
		err = tx.NewSelect().
			Model((*jobModel)(nil)).
			ColumnExpr("queue").
			ColumnExpr("CAST(COALESCE(MIN(CASE WHEN status = ? THEN (julianday(?) - julianday(created_at)) * 86400000 END), 0) AS INTEGER) AS oldest_pending_age_ms", job.Pending, now).
			ColumnExpr("CAST(COALESCE(AVG(CASE WHEN started_at IS NOT NULL THEN (julianday(started_at) - julianday(created_at)) * 86400000 END), 0) AS INTEGER) AS avg_wait_time_ms").
			ColumnExpr("CAST(COALESCE(AVG(CASE WHEN completed_at IS NOT NULL AND started_at IS NOT NULL THEN (julianday(completed_at) - julianday(started_at)) * 86400000 END), 0) AS INTEGER) AS avg_processing_time_ms").
			Group("queue").
			Scan(ctx, &timings)
		if err != nil {
			return err
		}

		byQueue := make(map[string]*queueStatsModel)
		for _, c := range counts {
			qs, ok := byQueue[c.Queue]
			if !ok {
				qs = &queueStatsModel{Queue: c.Queue, RefreshedAt: now}
				byQueue[c.Queue] = qs
			}
			switch c.Status {
			case job.Pending:
				qs.Pending = c.N
			case job.Scheduled:
				qs.Scheduled = c.N
			case job.Processing:
				qs.Processing = c.N
			case job.Completed:
				qs.Completed = c.N
			case job.DeadLetter:
				qs.DeadLetter = c.N
			case job.Cancelled:
				qs.Cancelled = c.N
			}
		}
		for _, t := range timings {
			qs, ok := byQueue[t.Queue]
			if !ok {
				qs = &queueStatsModel{Queue: t.Queue, RefreshedAt: now}
				byQueue[t.Queue] = qs
			}
			qs.OldestPendingAgeMs = t.OldestPendingAgeMs
			qs.AvgWaitTimeMs = t.AvgWaitTimeMs
			qs.AvgProcessingTimeMs = t.AvgProcessingTimeMs
		}

		for _, qs := range byQueue {
			qs.RefreshedAt = now
			_, err := tx.NewInsert().
				Model(qs).
				On("CONFLICT (queue) DO UPDATE").
				Set("pending = EXCLUDED.pending").
				Set("scheduled = EXCLUDED.scheduled").
				Set("processing = EXCLUDED.processing").
				Set("completed = EXCLUDED.completed").
				Set("dead_letter = EXCLUDED.dead_letter").
				Set("cancelled = EXCLUDED.cancelled").
				Set("oldest_pending_age_ms = EXCLUDED.oldest_pending_age_ms").
				Set("avg_wait_time_ms = EXCLUDED.avg_wait_time_ms").
				Set("avg_processing_time_ms = EXCLUDED.avg_processing_time_ms").
				Set("refreshed_at = EXCLUDED.refreshed_at").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the most recently refreshed stats for queue, or
// (nil, nil) if the queue has no recorded row.
func (s *Stats) Get(ctx context.Context, queueName string) (*job.QueueStats, error) {
	var model queueStatsModel
	err := s.db.NewSelect().
		Model(&model).
		Where("queue = ?", queueName).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model.toStats(), nil
}

// List returns the most recently refreshed stats for every queue.
func (s *Stats) List(ctx context.Context) ([]*job.QueueStats, error) {
	var models []*queueStatsModel
	if err := s.db.NewSelect().Model(&models).Order("queue ASC").Scan(ctx); err != nil {
		return nil, err
	}
	ret := make([]*job.QueueStats, len(models))
	for i, m := range models {
		ret[i] = m.toStats()
	}
	return ret, nil
}
