package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	gsql "github.com/renderqueue/core/queue/sql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	ctx := context.Background()
	if err := gsql.InitDB(ctx, db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestSchedulerRunsSingleStepJobToCompletion(t *testing.T) {
	db := newTestDB(t)

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)
	observer := gsql.NewObserver(db)

	logger := slog.Default()

	handlerCalled := make(chan struct{}, 1)
	registry := queue.NewHandlerRegistry()
	registry.Register("video", "execute", func(sc *queue.StepContext) error {
		handlerCalled <- struct{}{}
		return nil
	})

	cfg := &queue.SchedulerConfig{
		Concurrency:  1,
		Queue:        10,
		BatchSize:    1,
		PollInterval: 20 * time.Millisecond,
		Lease:        200 * time.Millisecond,
	}

	scheduler := queue.NewScheduler(claimer, registry, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = scheduler.Stop(time.Second) }()

	spec := job.NewSpec("renders", "video", []byte("payload"))
	id, _, err := ingestor.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-handlerCalled:
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	time.Sleep(100 * time.Millisecond)

	jb, err := observer.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if jb.Status != job.Completed {
		t.Fatalf("expected Completed, got %v", jb.Status)
	}
}

func TestSchedulerRetriesFailedStep(t *testing.T) {
	db := newTestDB(t)

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)
	observer := gsql.NewObserver(db)

	logger := slog.Default()

	var calls atomic.Int32
	registry := queue.NewHandlerRegistry()
	registry.Register("video", "execute", func(sc *queue.StepContext) error {
		if calls.Add(1) < 2 {
			return errors.New("fail once")
		}
		return nil
	})

	cfg := &queue.SchedulerConfig{
		Concurrency:  1,
		Queue:        10,
		BatchSize:    1,
		PollInterval: 20 * time.Millisecond,
		Lease:        200 * time.Millisecond,
		Backoff: queue.BackoffConfig{
			MaxRetries: 3,
			Strategy:   queue.BackoffFixed,
			BaseDelay:  10 * time.Millisecond,
		},
	}

	scheduler := queue.NewScheduler(claimer, registry, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = scheduler.Stop(time.Second) }()

	spec := job.NewSpec("renders", "video", nil)
	id, _, err := ingestor.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		jb, err := observer.Get(ctx, id)
		if err == nil && jb.Status == job.Completed {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected job to reach Completed after one retry")
}

func TestSchedulerDeadLettersAfterExhaustingRetries(t *testing.T) {
	db := newTestDB(t)

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)
	observer := gsql.NewObserver(db)

	logger := slog.Default()

	registry := queue.NewHandlerRegistry()
	registry.Register("video", "execute", func(sc *queue.StepContext) error {
		return errors.New("always fails")
	})

	cfg := &queue.SchedulerConfig{
		Concurrency:  1,
		Queue:        10,
		BatchSize:    1,
		PollInterval: 20 * time.Millisecond,
		Lease:        200 * time.Millisecond,
		Backoff: queue.BackoffConfig{
			MaxRetries: 1,
			Strategy:   queue.BackoffFixed,
			BaseDelay:  10 * time.Millisecond,
		},
	}

	scheduler := queue.NewScheduler(claimer, registry, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = scheduler.Stop(time.Second) }()

	spec := job.NewSpec("renders", "video", nil)
	id, _, err := ingestor.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		jb, err := observer.Get(ctx, id)
		if err == nil && jb.Status == job.DeadLetter {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected job to reach DeadLetter after exhausting retries")
}
