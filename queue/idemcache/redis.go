package idemcache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on top of a redis.Client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Lookup returns the job id cached for (queue, key).
func (c *RedisCache) Lookup(ctx context.Context, queue, key string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(queue, key)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.UUID{}, false, nil
	}
	if err != nil {
		return uuid.UUID{}, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.UUID{}, false, err
	}
	return id, true, nil
}

// Set records id as the holder of (queue, key), expiring after ttl.
func (c *RedisCache) Set(ctx context.Context, queue, key string, id uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, cacheKey(queue, key), id.String(), ttl).Err()
}

// Delete removes any cached entry for (queue, key).
func (c *RedisCache) Delete(ctx context.Context, queue, key string) error {
	return c.client.Del(ctx, cacheKey(queue, key)).Err()
}
