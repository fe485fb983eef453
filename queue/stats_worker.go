package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/renderqueue/core/internal"
)

// StatsWorker periodically refreshes a Stats implementation so that
// Get/List reads stay close to current storage state without forcing
// every read to recompute aggregates inline.
//
// StatsWorker has a strict lifecycle:
//   - Start may only be called once.
//   - Stop must be called to terminate the worker.
type StatsWorker struct {
	lcBase
	stats    Stats
	task     internal.TimerTask
	log      *slog.Logger
	interval time.Duration
}

// NewStatsWorker creates a new StatsWorker that refreshes stats every
// interval.
func NewStatsWorker(stats Stats, interval time.Duration, log *slog.Logger) *StatsWorker {
	return &StatsWorker{
		stats:    stats,
		log:      log,
		interval: interval,
	}
}

func (sw *StatsWorker) refresh(ctx context.Context) {
	if err := sw.stats.Refresh(ctx); err != nil {
		sw.log.Error("stats refresh failed", "err", err)
	}
}

// Start begins periodic refreshing of stats.
//
// Start returns ErrDoubleStarted if already started.
func (sw *StatsWorker) Start(ctx context.Context) error {
	if err := sw.tryStart(); err != nil {
		return err
	}
	sw.task.Start(ctx, sw.refresh, sw.interval)
	return nil
}

// Stop terminates the background refresh task.
//
// Stop returns ErrStopTimeout if shutdown does not complete within
// timeout, or ErrDoubleStopped if not currently running.
func (sw *StatsWorker) Stop(timeout time.Duration) error {
	return sw.tryStop(timeout, sw.task.Stop)
}
