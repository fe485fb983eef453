package queue

import "errors"

var (
	// ErrJobLost indicates that the referenced job no longer exists in
	// storage or cannot be found in its expected state.
	//
	// This may occur if the job was concurrently transitioned or removed
	// by another actor, for example a stall sweep reclaiming a lease the
	// caller believed it still held.
	ErrJobLost = errors.New("queue: job lost")

	// ErrLeaseLost indicates that the caller no longer owns the job's
	// worker lease. This typically happens when the lease expires and
	// another worker claims the job before the current worker completes,
	// extends, or fails it.
	ErrLeaseLost = errors.New("queue: lease lost")

	// ErrCompleteFailed indicates that a job could not be completed
	// because it was not found in the expected state at commit time.
	ErrCompleteFailed = errors.New("queue: complete failed")

	// ErrBadStatus indicates that an invalid job status was supplied to
	// an operation that restricts its targets to a subset of states, such
	// as Retention, which only accepts terminal non-archival states.
	ErrBadStatus = errors.New("queue: bad job status")

	// ErrAlreadyTerminal indicates an attempt to cancel or otherwise
	// transition a job that has already reached a terminal state.
	ErrAlreadyTerminal = errors.New("queue: job already terminal")

	// ErrUnknownType indicates that no StepHandler is registered for a
	// job's type.
	ErrUnknownType = errors.New("queue: unknown job type")

	// ErrNoSuchEntry indicates that an Archive lookup or replay was asked
	// to act on an archive entry id it could not find.
	ErrNoSuchEntry = errors.New("queue: no such archive entry")

	// ErrValidation indicates that a Spec failed validation at ingestion
	// time, for example because it named an empty queue or type.
	ErrValidation = errors.New("queue: invalid job spec")
)
