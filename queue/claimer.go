package queue

import (
	"context"
	"time"

	"github.com/renderqueue/core/job"
)

// Claimer defines the read-write contract for consuming and managing
// jobs through their lifecycle: claim, heartbeat, per-step state and
// completion, retry, dead-letter and cancel.
//
// Claimer provides visibility-timeout (lease) semantics similar to
// systems such as Amazon SQS: Claim transitions jobs from Pending to
// Processing and assigns a TimeoutAt lease; while held, a job is
// invisible to other claimers. If a worker crashes or fails to act
// before the lease expires, SweepExpired returns the job to Pending
// (or dead-letters it) and it becomes claimable again.
//
// The queue provides at-least-once delivery. Step handlers must be
// idempotent with respect to being re-invoked for a step they already
// partially ran.
type Claimer interface {

	// Claim selects up to batch eligible jobs across priority classes,
	// Urgent first, and transitions them to Processing.
	//
	// A job is eligible when its queue matches (or queue is "" for any
	// queue), it is Pending or Scheduled, and its ScheduledAt has passed.
	// Processing jobs whose lease has expired are not claimed here;
	// SweepExpired handles them. Eligible jobs have
	// Attempts incremented, WorkerLease assigned, and TimeoutAt set to
	// now + lease.
	Claim(ctx context.Context, queue string, batch int, lease time.Duration) ([]*job.Job, error)

	// Heartbeat extends a held job's lease. It fails with ErrLeaseLost if
	// the job is no longer Processing under the caller's lease.
	Heartbeat(ctx context.Context, jb *job.Job, lease time.Duration) error

	// SetStepState durably persists a single state-bag key for the step
	// at index, so that a crash after this call does not lose the
	// checkpoint even if the step itself never returns.
	SetStepState(ctx context.Context, jb *job.Job, index int, key string, value any) error

	// DeleteStepState removes a single state-bag key for the step at index.
	DeleteStepState(ctx context.Context, jb *job.Job, index int, key string) error

	// CompleteStep marks the step at index StepCompleted and records its
	// output. If index is the last step, the job transitions to
	// Completed; otherwise it remains Processing awaiting the next step.
	CompleteStep(ctx context.Context, jb *job.Job, index int, output []byte) error

	// FailStep marks the step at index StepFailed and records errMsg as
	// the job's LastError without transitioning the job itself; the
	// caller decides between Retry and DeadLetter afterward.
	FailStep(ctx context.Context, jb *job.Job, index int, errMsg string) error

	// Retry reschedules a Processing job back to Pending, clearing its
	// lease and setting ScheduledAt to now + delay. Per-step status of
	// already-completed steps is left untouched; the failed step
	// reverts to StepPending so it is re-attempted.
	Retry(ctx context.Context, jb *job.Job, failedStep int, delay time.Duration, errMsg string) error

	// DeadLetter transitions a Processing job to the terminal DeadLetter
	// state and writes its ArchiveEntry in the same transaction.
	DeadLetter(ctx context.Context, jb *job.Job, failedStep int, errMsg string) error

	// Cancel transitions a Pending or Scheduled job to Cancelled. It
	// returns ErrAlreadyTerminal if the job has already reached a
	// terminal state.
	Cancel(ctx context.Context, jb *job.Job) error

	// SweepExpired reclaims Processing jobs whose lease has expired. A
	// job with attempts remaining is returned to Pending tagged with a
	// timeout error; a job that has exhausted its attempts is
	// dead-lettered instead. It is the storage primitive behind
	// periodic stall recovery.
	SweepExpired(ctx context.Context) (int64, error)

	// ReclaimOwn resolves every Processing job whose lease is still held
	// by this Claimer's own worker id, without waiting for the lease to
	// expire. It is meant to run once at startup, so that jobs left
	// Processing by a crashed previous instance of this same worker
	// become eligible again immediately instead of sitting idle until
	// their lease would otherwise time out.
	ReclaimOwn(ctx context.Context) (int64, error)
}
