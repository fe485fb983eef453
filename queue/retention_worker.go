package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/renderqueue/core/internal"
	"github.com/renderqueue/core/job"
)

// RetentionConfig defines the scheduling and filtering parameters for
// a RetentionWorker.
//
// Status must be job.Completed or job.Cancelled; Purge rejects any
// other value.
//
// Interval defines how often the worker runs.
//
// If Before is true, deletion is restricted to jobs whose UpdatedAt is
// older than now - Delta.
type RetentionConfig struct {
	Status   job.Status
	Interval time.Duration
	Before   bool
	Delta    time.Duration
}

// RetentionWorker periodically invokes a Retention implementation
// according to the provided configuration.
//
// RetentionWorker does not participate in job processing and does not
// affect leases; it only purges historical Completed/Cancelled rows.
//
// RetentionWorker has a strict lifecycle:
//   - Start may only be called once.
//   - Stop must be called to terminate the worker.
type RetentionWorker struct {
	lcBase
	retention Retention
	task      internal.TimerTask
	log       *slog.Logger
	status    job.Status
	interval  time.Duration
	before    bool
	delta     time.Duration
}

// NewRetentionWorker creates a new RetentionWorker using the provided
// Retention implementation and configuration.
func NewRetentionWorker(retention Retention, config *RetentionConfig, log *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		retention: retention,
		log:       log,
		status:    config.Status,
		interval:  config.Interval,
		before:    config.Before,
		delta:     config.Delta,
	}
}

func (rw *RetentionWorker) beforeStamp() *time.Time {
	if !rw.before {
		return nil
	}
	ret := time.Now()
	if rw.delta != 0 {
		ret = ret.Add(-rw.delta)
	}
	return &ret
}

func (rw *RetentionWorker) purge(ctx context.Context) {
	before := rw.beforeStamp()
	count, err := rw.retention.Purge(ctx, rw.status, before)
	if err != nil {
		rw.log.Error("error while purging", "error", err)
		return
	}
	rw.log.Info("purged jobs", "count", count)
}

// Start begins periodic execution of the purge task.
//
// Start returns ErrDoubleStarted if already started.
func (rw *RetentionWorker) Start(ctx context.Context) error {
	if err := rw.tryStart(); err != nil {
		return err
	}
	rw.task.Start(ctx, rw.purge, rw.interval)
	return nil
}

// Stop terminates the background purge task.
//
// Stop returns ErrStopTimeout if shutdown does not complete within
// timeout, or ErrDoubleStopped if not currently running.
func (rw *RetentionWorker) Stop(timeout time.Duration) error {
	return rw.tryStop(timeout, rw.task.Stop)
}
