package queue

import (
	"context"

	"github.com/renderqueue/core/job"
)

// Stats aggregates per-queue counters and timing snapshots for
// operator and monitoring consumption. It is refreshed out of band;
// callers on the hot ingestion/claim path must never depend on Stats
// reflecting the current call's own effects.
type Stats interface {

	// Refresh recomputes every queue's QueueStats from current storage
	// state. Implementations are expected to run this periodically
	// rather than on demand from Get/List.
	Refresh(ctx context.Context) error

	// Get returns the most recently refreshed stats for queue, or
	// (nil, nil) if the queue has no jobs on record.
	Get(ctx context.Context, queue string) (*job.QueueStats, error)

	// List returns the most recently refreshed stats for every queue
	// with at least one job on record.
	List(ctx context.Context) ([]*job.QueueStats, error)
}
