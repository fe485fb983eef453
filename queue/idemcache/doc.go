// Package idemcache provides a read-through cache in front of a
// queue.Ingestor's idempotency index, backed by redis/go-redis.
//
// The cache is never authoritative and Ingest never skips the durable
// store: CachedIngestor only short-circuits a lookup when the cached
// job still carries an active status as observed through a
// queue.Observer at call time, and always writes through to the
// wrapped Ingestor on a miss. Removing this package changes
// performance under a hot duplicate-key burst, never correctness.
package idemcache
