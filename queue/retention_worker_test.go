package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/renderqueue/core/job"
)

type mockRetention struct {
	count atomic.Int64
}

func (m *mockRetention) Purge(ctx context.Context, status job.Status, before *time.Time) (int64, error) {
	m.count.Add(1)
	return 1, nil
}

func TestRetentionWorkerBasic(t *testing.T) {
	retention := &mockRetention{}
	logger := slog.Default()

	cfg := &RetentionConfig{
		Status:   job.Completed,
		Interval: 50 * time.Millisecond,
		Before:   false,
	}

	w := NewRetentionWorker(retention, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)

	if err := w.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	if retention.count.Load() == 0 {
		t.Fatal("expected retention to run at least once")
	}
}

func TestRetentionWorkerLifecycleErrors(t *testing.T) {
	retention := &mockRetention{}
	logger := slog.Default()

	cfg := &RetentionConfig{Status: job.Completed, Interval: time.Second}
	w := NewRetentionWorker(retention, cfg, logger)

	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err == nil {
		t.Fatal("expected ErrDoubleStarted")
	}
	if err := w.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(time.Second); err == nil {
		t.Fatal("expected ErrDoubleStopped")
	}
}
