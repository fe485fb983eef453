package idemcache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
)

// CachedIngestor wraps a queue.Ingestor with a read-through Cache so a
// hot idempotency key resolves with a single observer Get instead of a
// full ingest through inner.
//
// A cache hit is never trusted on its own: the job it points at is
// re-fetched from observer and re-checked for a terminal status, since
// the cached entry may outlive the window in which its key is still
// reserved (§3 invariant 4 only binds while a job is pending,
// scheduled, or processing). A stale hit is evicted and the call falls
// through to inner.
type CachedIngestor struct {
	inner    queue.Ingestor
	observer queue.Observer
	cache    Cache
	ttl      time.Duration
}

// NewCachedIngestor wraps inner with cache, consulting observer to
// re-verify every cache hit. ttl bounds how long a successful ingest's
// key stays cached.
func NewCachedIngestor(inner queue.Ingestor, observer queue.Observer, cache Cache, ttl time.Duration) *CachedIngestor {
	return &CachedIngestor{inner: inner, observer: observer, cache: cache, ttl: ttl}
}

func (c *CachedIngestor) Ingest(ctx context.Context, spec job.Spec, delay time.Duration) (uuid.UUID, bool, error) {
	if spec.IdempotencyKey == "" {
		return c.inner.Ingest(ctx, spec, delay)
	}
	if id, ok, err := c.cache.Lookup(ctx, spec.Queue, spec.IdempotencyKey); err == nil && ok {
		jb, err := c.observer.Get(ctx, id)
		if err == nil && jb != nil && !jb.Status.Terminal() {
			return id, true, nil
		}
		_ = c.cache.Delete(ctx, spec.Queue, spec.IdempotencyKey)
	}
	id, dedup, err := c.inner.Ingest(ctx, spec, delay)
	if err != nil {
		return uuid.UUID{}, false, err
	}
	if setErr := c.cache.Set(ctx, spec.Queue, spec.IdempotencyKey, id, c.ttl); setErr != nil {
		return id, dedup, nil
	}
	return id, dedup, nil
}
