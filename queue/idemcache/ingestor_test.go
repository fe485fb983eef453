package idemcache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/renderqueue/core/queue/idemcache"
)

type fakeIngestor struct {
	calls int
	id    uuid.UUID
}

func (f *fakeIngestor) Ingest(ctx context.Context, spec job.Spec, delay time.Duration) (uuid.UUID, bool, error) {
	f.calls++
	return f.id, false, nil
}

type fakeObserver struct {
	jobs map[uuid.UUID]*job.Job
}

func (f *fakeObserver) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return f.jobs[id], nil
}

func (f *fakeObserver) GetByIdempotencyKey(ctx context.Context, queue, key string) (*job.Job, error) {
	return nil, errors.New("unused in this test")
}

func (f *fakeObserver) List(ctx context.Context, filter queue.ListFilter) ([]*job.Job, error) {
	return nil, errors.New("unused in this test")
}

func newTestCache(t *testing.T) (*idemcache.RedisCache, func()) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return idemcache.NewRedisCache(client), server.Close
}

func TestCachedIngestorMissFallsThrough(t *testing.T) {
	cache, closeFn := newTestCache(t)
	defer closeFn()

	id := uuid.New()
	inner := &fakeIngestor{id: id}
	observer := &fakeObserver{jobs: map[uuid.UUID]*job.Job{}}
	ci := idemcache.NewCachedIngestor(inner, observer, cache, time.Minute)

	spec := job.Spec{Queue: "renders", Type: "thumbnail", IdempotencyKey: "key-1"}
	gotID, dedup, err := ci.Ingest(context.Background(), spec, 0)
	if err != nil {
		t.Fatal(err)
	}
	if dedup {
		t.Fatal("expected first call to not be deduplicated")
	}
	if gotID != id {
		t.Fatalf("expected id %s, got %s", id, gotID)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner to be called once, got %d", inner.calls)
	}
}

func TestCachedIngestorHitSkipsInner(t *testing.T) {
	cache, closeFn := newTestCache(t)
	defer closeFn()

	id := uuid.New()
	inner := &fakeIngestor{id: id}
	observer := &fakeObserver{jobs: map[uuid.UUID]*job.Job{
		id: {Id: id, Status: job.Pending},
	}}
	ci := idemcache.NewCachedIngestor(inner, observer, cache, time.Minute)

	spec := job.Spec{Queue: "renders", Type: "thumbnail", IdempotencyKey: "key-1"}
	ctx := context.Background()
	if _, _, err := ci.Ingest(ctx, spec, 0); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner called once after first ingest, got %d", inner.calls)
	}

	gotID, dedup, err := ci.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !dedup {
		t.Fatal("expected cache hit to report deduplicated")
	}
	if gotID != id {
		t.Fatalf("expected id %s, got %s", id, gotID)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner not called again on cache hit, got %d calls", inner.calls)
	}
}

func TestCachedIngestorStaleHitFallsThrough(t *testing.T) {
	cache, closeFn := newTestCache(t)
	defer closeFn()

	id := uuid.New()
	inner := &fakeIngestor{id: id}
	observer := &fakeObserver{jobs: map[uuid.UUID]*job.Job{
		id: {Id: id, Status: job.Completed},
	}}
	ci := idemcache.NewCachedIngestor(inner, observer, cache, time.Minute)

	spec := job.Spec{Queue: "renders", Type: "thumbnail", IdempotencyKey: "key-1"}
	ctx := context.Background()
	if err := cache.Set(ctx, spec.Queue, spec.IdempotencyKey, id, time.Minute); err != nil {
		t.Fatal(err)
	}

	gotID, dedup, err := ci.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}
	if dedup {
		t.Fatal("expected terminal job's cache entry to be treated as a miss")
	}
	if gotID != id {
		t.Fatalf("expected id %s, got %s", id, gotID)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner to be called once, got %d", inner.calls)
	}
}
