package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type mockSweepClaimer struct {
	Claimer
	count atomic.Int64
}

func (m *mockSweepClaimer) SweepExpired(ctx context.Context) (int64, error) {
	m.count.Add(1)
	return 2, nil
}

func (m *mockSweepClaimer) ReclaimOwn(ctx context.Context) (int64, error) {
	return 0, nil
}

func TestStallRecovererBasic(t *testing.T) {
	claimer := &mockSweepClaimer{}
	logger := slog.Default()

	sr := NewStallRecoverer(claimer, 50*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sr.Start(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)

	if err := sr.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	if claimer.count.Load() == 0 {
		t.Fatal("expected sweep to run at least once")
	}
}

func TestStallRecovererLifecycleErrors(t *testing.T) {
	claimer := &mockSweepClaimer{}
	logger := slog.Default()

	sr := NewStallRecoverer(claimer, time.Second, logger)
	ctx := context.Background()

	if err := sr.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sr.Start(ctx); err == nil {
		t.Fatal("expected ErrDoubleStarted")
	}
	if err := sr.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := sr.Stop(time.Second); err == nil {
		t.Fatal("expected ErrDoubleStopped")
	}
}
