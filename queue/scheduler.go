package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/renderqueue/core/internal"
	"github.com/renderqueue/core/job"
)

// SchedulerConfig defines runtime behavior of a Scheduler.
//
// Concurrency specifies the number of concurrent step handlers.
//
// Queue specifies the internal buffering capacity between claiming
// jobs from storage and dispatching them to handlers.
//
// BatchSize defines the maximum number of jobs fetched in a single Claim.
//
// ClaimQueue restricts claiming to a single named queue; empty claims
// across every queue.
//
// PollInterval defines how often the scheduler polls storage for new jobs.
//
// Lease defines the visibility timeout assigned to each claimed job.
//
// Backoff defines the retry policy applied when a step handler returns
// an error.
type SchedulerConfig struct {
	Concurrency  int
	Queue        int
	BatchSize    int
	ClaimQueue   string
	PollInterval time.Duration
	Lease        time.Duration
	Backoff      BackoffConfig
}

// Scheduler coordinates claiming, dispatching, stepping, retrying and
// completing jobs.
//
// Scheduler implements an at-least-once processing model:
//
//  1. Periodically Claim jobs from storage.
//  2. Dispatch each to a worker-pool goroutine.
//  3. Walk its steps in order starting from CurrentStep, invoking the
//     registered StepHandler for each and extending its lease while the
//     handler runs.
//  4. On full completion, the job is already Completed via the last
//     CompleteStep call.
//  5. On a step failure, reschedule or dead-letter the job according to
//     BackoffConfig.
//
// Scheduler does not guarantee exactly-once delivery; step handlers
// must be idempotent with respect to re-invocation.
//
// Scheduler has a strict lifecycle:
//   - Start may only be called once.
//   - Stop gracefully shuts down claim and worker goroutines.
//   - Stop waits until all in-flight handlers finish or the timeout expires.
type Scheduler struct {
	lcBase
	claimer    Claimer
	claimTask  internal.TimerTask
	pool       *internal.WorkerPool[*job.Job]
	log        *slog.Logger
	registry   *HandlerRegistry
	batchSize  int
	claimQueue string
	interval   time.Duration
	lease      time.Duration
	halfLease  time.Duration
	backoff    backoffCounter
}

// NewScheduler creates a new Scheduler instance.
//
// The scheduler is not started automatically. Call Start to begin
// processing.
func NewScheduler(claimer Claimer, registry *HandlerRegistry, config *SchedulerConfig, log *slog.Logger) *Scheduler {
	return &Scheduler{
		claimer:    claimer,
		pool:       internal.NewWorkerPool[*job.Job](config.Concurrency, config.Queue, log),
		log:        log,
		registry:   registry,
		batchSize:  config.BatchSize,
		claimQueue: config.ClaimQueue,
		interval:   config.PollInterval,
		lease:      config.Lease,
		halfLease:  config.Lease / 2,
		backoff:    backoffCounter{config.Backoff},
	}
}

func (s *Scheduler) claim(ctx context.Context) {
	jobs, err := s.claimer.Claim(ctx, s.claimQueue, s.batchSize, s.lease)
	if err != nil {
		s.log.Error("claim failed", "err", err)
		return
	}
	for _, entry := range jobs {
		if !s.pool.Push(entry) {
			s.log.Debug("job push interrupted via shutdown", "id", entry.Id)
			return
		}
	}
}

type stepResult struct {
	index int
	err   error
}

func (s *Scheduler) runStep(ctx context.Context, jb *job.Job, index int) stepResult {
	handler, err := s.registry.Lookup(jb.Type, jb.Steps[index].Name)
	if err != nil {
		return stepResult{index: index, err: err}
	}
	ret := make(chan error, 1)
	sc := &StepContext{ctx: ctx, claimer: s.claimer, jb: jb, index: index}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ret <- errors.New("queue: step handler panic recovered")
			}
		}()
		ret <- handler(sc)
	}()
	return stepResult{index: index, err: <-ret}
}

// walk executes jb's remaining steps in order, extending the lease
// every halfLease interval while a step handler is running. It stops
// at the first failing step or once every step is complete.
func (s *Scheduler) walk(ctx context.Context, jb *job.Job) stepResult {
	for {
		index, ok := jb.CurrentStep()
		if !ok {
			return stepResult{index: -1, err: nil}
		}
		result := s.runStepWithLease(ctx, jb, index)
		if result.err != nil {
			return result
		}
	}
}

func (s *Scheduler) runStepWithLease(ctx context.Context, jb *job.Job, index int) stepResult {
	wrapped, cancel := context.WithCancel(ctx)
	defer cancel()
	resultCh := make(chan stepResult, 1)
	go func() {
		resultCh <- s.runStep(wrapped, jb, index)
	}()
	timer := time.NewTimer(s.halfLease)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			if err := s.claimer.Heartbeat(ctx, jb, s.lease); err != nil {
				cancel()
				return stepResult{index: index, err: err}
			}
			timer.Reset(s.halfLease)
		case result := <-resultCh:
			if result.err == nil {
				if err := s.claimer.CompleteStep(ctx, jb, index, jb.Steps[index].Output); err != nil {
					return stepResult{index: index, err: err}
				}
				jb.Steps[index].Status = job.StepCompleted
			}
			return result
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, jb *job.Job) {
	result := s.walk(ctx, jb)
	if result.err == nil {
		return // last CompleteStep already transitioned the job to Completed
	}
	if errors.Is(result.err, ErrLeaseLost) {
		s.log.Warn("job lease lost", "id", jb.Id, "err", result.err)
		return
	}
	if err := s.claimer.FailStep(ctx, jb, result.index, result.err.Error()); err != nil {
		s.log.Error("cannot record step failure", "id", jb.Id, "err", err)
		return
	}
	delay, ok := s.backoff.next(jb.Attempts, jb.MaxAttempts)
	if !ok {
		if err := s.claimer.DeadLetter(ctx, jb, result.index, result.err.Error()); err != nil {
			s.log.Error("cannot dead-letter job", "id", jb.Id, "err", err)
		}
		return
	}
	if err := s.claimer.Retry(ctx, jb, result.index, delay, result.err.Error()); err != nil {
		s.log.Error("cannot retry job", "id", jb.Id, "err", err)
	}
}

// Start begins background claiming and processing of jobs.
//
// Start returns ErrDoubleStarted if the scheduler has already been
// started.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.tryStart(); err != nil {
		return err
	}
	s.pool.Start(ctx, s.handle)
	s.claimTask.Start(ctx, s.claim, s.interval)
	return nil
}

func (s *Scheduler) doStop() internal.DoneChan {
	first := s.claimTask.Stop()
	second := s.pool.Stop()
	return internal.Combine(first, second)
}

// Stop initiates graceful shutdown of the scheduler.
//
// Stop returns ErrStopTimeout if shutdown does not complete within the
// given timeout; background goroutines may still be terminating in
// that case. Stop returns ErrDoubleStopped if not currently running.
func (s *Scheduler) Stop(timeout time.Duration) error {
	return s.tryStop(timeout, s.doStop)
}
