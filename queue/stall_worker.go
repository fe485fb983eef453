package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/renderqueue/core/internal"
)

// StallRecoverer periodically sweeps Processing jobs whose lease has
// expired, retrying or dead-lettering each one depending on whether it
// has attempts remaining, guarding against a worker that crashed or
// was partitioned away mid-step without ever reporting failure.
//
// On Start, StallRecoverer also reclaims jobs left Processing under
// its own worker id by a previous, crashed instance of this same
// worker, before the periodic sweep begins.
//
// StallRecoverer has a strict lifecycle:
//   - Start may only be called once.
//   - Stop must be called to terminate the background sweep.
type StallRecoverer struct {
	lcBase
	claimer  Claimer
	task     internal.TimerTask
	log      *slog.Logger
	interval time.Duration
}

// NewStallRecoverer creates a new StallRecoverer that sweeps claimer
// every interval.
func NewStallRecoverer(claimer Claimer, interval time.Duration, log *slog.Logger) *StallRecoverer {
	return &StallRecoverer{
		claimer:  claimer,
		log:      log,
		interval: interval,
	}
}

func (sr *StallRecoverer) sweep(ctx context.Context) {
	count, err := sr.claimer.SweepExpired(ctx)
	if err != nil {
		sr.log.Error("stall sweep failed", "err", err)
		return
	}
	if count > 0 {
		sr.log.Info("recovered stalled jobs", "count", count)
	}
}

// Start reclaims any jobs left Processing by a previous crashed
// instance of this worker, then begins periodic execution of the
// sweep.
//
// Start returns ErrDoubleStarted if already started.
func (sr *StallRecoverer) Start(ctx context.Context) error {
	if err := sr.tryStart(); err != nil {
		return err
	}
	if count, err := sr.claimer.ReclaimOwn(ctx); err != nil {
		sr.log.Error("startup self-reclaim failed", "err", err)
	} else if count > 0 {
		sr.log.Info("reclaimed jobs held by this worker at startup", "count", count)
	}
	sr.task.Start(ctx, sr.sweep, sr.interval)
	return nil
}

// Stop terminates the background sweep.
//
// Stop waits until the task finishes or timeout expires, returning
// ErrStopTimeout otherwise. Stop returns ErrDoubleStopped if not
// running.
func (sr *StallRecoverer) Stop(timeout time.Duration) error {
	return sr.tryStop(timeout, sr.task.Stop)
}
