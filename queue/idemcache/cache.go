// Package idemcache provides an optional read-through cache in front
// of the SQL idempotency index, so a hot idempotency key does not
// round-trip the database's unique-index lookup on every duplicate
// ingestion attempt.
//
// The cache is never authoritative. It exists purely to shed load off
// the SQL path; every cache hit is re-verified against the durable
// store before a caller is told a job is deduplicated, since the
// cached job may since have reached a terminal state and freed its
// key for reuse.
package idemcache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cache maps (queue, idempotencyKey) to the job id currently holding
// that key.
type Cache interface {
	// Lookup returns the job id cached for (queue, key), or ok=false
	// if there is no entry.
	Lookup(ctx context.Context, queue, key string) (uuid.UUID, bool, error)

	// Set records id as the holder of (queue, key), expiring after ttl.
	Set(ctx context.Context, queue, key string, id uuid.UUID, ttl time.Duration) error

	// Delete removes any cached entry for (queue, key). Deleting an
	// absent entry is not an error.
	Delete(ctx context.Context, queue, key string) error
}

func cacheKey(queue, key string) string {
	return "idemcache:" + queue + ":" + key
}
