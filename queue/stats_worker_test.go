package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/renderqueue/core/job"
)

type mockStats struct {
	refreshes atomic.Int64
	err       error
}

func (m *mockStats) Refresh(ctx context.Context) error {
	m.refreshes.Add(1)
	return m.err
}

func (m *mockStats) Get(ctx context.Context, queue string) (*job.QueueStats, error) {
	return nil, nil
}

func (m *mockStats) List(ctx context.Context) ([]*job.QueueStats, error) {
	return nil, nil
}

func TestStatsWorkerBasic(t *testing.T) {
	stats := &mockStats{}
	logger := slog.Default()

	w := NewStatsWorker(stats, 50*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)

	if err := w.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	if stats.refreshes.Load() == 0 {
		t.Fatal("expected stats to refresh at least once")
	}
}

func TestStatsWorkerSurvivesRefreshError(t *testing.T) {
	stats := &mockStats{err: context.DeadlineExceeded}
	logger := slog.Default()

	w := NewStatsWorker(stats, 30*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := w.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	if stats.refreshes.Load() == 0 {
		t.Fatal("expected refresh to keep being invoked despite errors")
	}
}
