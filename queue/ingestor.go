package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"golang.org/x/sync/singleflight"
)

// Ingestor defines the write-side entry point of the queue: accepting a
// caller-supplied Spec and durably recording it as a Job.
type Ingestor interface {

	// Ingest enqueues spec as a new job, or returns the id of the job
	// previously ingested under the same (Queue, IdempotencyKey) pair.
	//
	// delay is how far into the future the job should become eligible
	// for claim; zero makes it immediately Pending, positive puts it in
	// Scheduled until delay elapses.
	//
	// deduplicated is true when an existing job was returned instead of
	// a new one being created; in that case spec is not re-validated
	// against the existing row and no new steps are recorded.
	Ingest(ctx context.Context, spec job.Spec, delay time.Duration) (id uuid.UUID, deduplicated bool, err error)
}

// singleflightIngestor collapses concurrent Ingest calls that share the
// same (Queue, IdempotencyKey) pair into a single underlying call,
// closing the race window between a duplicate-key lookup and insert
// that a plain unique-index implementation would otherwise leave open
// under concurrent producers.
type singleflightIngestor struct {
	inner Ingestor
	group singleflight.Group
}

// NewSingleflightIngestor wraps inner so that concurrent Ingest calls
// sharing a (Queue, IdempotencyKey) pair are collapsed into one call to
// inner, with every caller receiving the same result.
//
// Specs without an IdempotencyKey are never collapsed; each is passed
// straight to inner without going through the singleflight group.
func NewSingleflightIngestor(inner Ingestor) Ingestor {
	return &singleflightIngestor{inner: inner}
}

type ingestResult struct {
	id           uuid.UUID
	deduplicated bool
}

func (s *singleflightIngestor) Ingest(ctx context.Context, spec job.Spec, delay time.Duration) (uuid.UUID, bool, error) {
	key := spec.IdempotencyKey
	if key == "" {
		id, dedup, err := s.inner.Ingest(ctx, spec, delay)
		return id, dedup, err
	}
	key = spec.Queue + "\x00" + key
	leader := false
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		leader = true
		id, dedup, err := s.inner.Ingest(ctx, spec, delay)
		if err != nil {
			return nil, err
		}
		return ingestResult{id: id, deduplicated: dedup}, nil
	})
	if err != nil {
		return uuid.UUID{}, false, err
	}
	res := v.(ingestResult)
	// A shared caller that wasn't first in the group still sees the
	// same job id, so from its perspective the ingest was a dedup hit.
	return res.id, res.deduplicated || (shared && !leader), nil
}
