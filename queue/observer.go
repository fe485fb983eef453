package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
)

// ListFilter narrows an Observer.List call. Zero values mean "no
// filter on this dimension". Tag matches a job that carries the tag
// among its Tags; only one tag may be filtered per call.
type ListFilter struct {
	Queue  string
	Type   string
	Status job.Status
	Tag    string

	Limit  int
	Offset int
}

// Observer provides read-only access to jobs stored in the queue.
//
// Observer does not modify job state and does not participate in
// visibility timeout or lifecycle transitions. It is intended for
// diagnostic, monitoring, and administrative use cases.
//
// Methods of Observer return authoritative snapshots of storage state
// at the time of the call. Returned Job values must be treated as
// immutable views; mutating them does not affect the underlying queue.
type Observer interface {

	// Get returns the job identified by id.
	//
	// If no job with the given id exists, Get returns (nil, nil).
	//
	// The returned Job represents the current storage snapshot,
	// including its Status, Attempts, and scheduling metadata.
	//
	// Get must not change job state.
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// GetByIdempotencyKey returns the job enqueued under the given
	// queue/idempotency key pair, or (nil, nil) if none exists.
	GetByIdempotencyKey(ctx context.Context, queue, key string) (*job.Job, error)

	// List returns jobs matching filter, newest-created first.
	//
	// Every zero field of filter is treated as "unconstrained" on that
	// dimension. Limit <= 0 means "storage-defined default page size".
	//
	// The returned slice contains independent snapshots of job state.
	// Modifying the returned Job values does not affect the queue.
	//
	// List is intended for inspection and administrative tools and should
	// not be used as part of the normal consumption workflow.
	List(ctx context.Context, filter ListFilter) ([]*job.Job, error)
}
