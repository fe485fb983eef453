package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/renderqueue/core/job"
)

// StepContext is handed to a StepHandler for the single step it is
// currently executing. It exposes the job's current snapshot plus a
// checkpoint API backed by Claimer.SetStepState/DeleteStepState, so a
// handler's partial progress survives a crash between two Set calls.
type StepContext struct {
	ctx     context.Context
	claimer Claimer
	jb      *job.Job
	index   int
}

// Context returns the context the step was invoked with. It is
// canceled when the job's lease is lost or the scheduler is shutting
// down.
func (sc *StepContext) Context() context.Context {
	return sc.ctx
}

// Job returns the read-only snapshot of the job being processed.
func (sc *StepContext) Job() *job.Job {
	return sc.jb
}

// StepName returns the name of the step currently executing.
func (sc *StepContext) StepName() string {
	return sc.jb.Steps[sc.index].Name
}

// Get reads a key from the current step's state bag.
func (sc *StepContext) Get(key string) (any, bool) {
	v, ok := sc.jb.Steps[sc.index].State[key]
	return v, ok
}

// Set persists key=value to durable storage before returning, then
// updates the local snapshot so a later Get in the same invocation
// sees it.
func (sc *StepContext) Set(key string, value any) error {
	if err := sc.claimer.SetStepState(sc.ctx, sc.jb, sc.index, key, value); err != nil {
		return err
	}
	if sc.jb.Steps[sc.index].State == nil {
		sc.jb.Steps[sc.index].State = make(map[string]any)
	}
	sc.jb.Steps[sc.index].State[key] = value
	return nil
}

// Delete removes key from the current step's state bag, durably.
func (sc *StepContext) Delete(key string) error {
	if err := sc.claimer.DeleteStepState(sc.ctx, sc.jb, sc.index, key); err != nil {
		return err
	}
	delete(sc.jb.Steps[sc.index].State, key)
	return nil
}

// SetOutput records the bytes that will be persisted as the step's
// Output once it completes. It only affects the local snapshot;
// CompleteStep is what durably persists it, once the handler returns
// nil.
func (sc *StepContext) SetOutput(output []byte) {
	sc.jb.Steps[sc.index].Output = output
}

// StepHandler executes a single named step of a job's work.
//
// The provided context is canceled when the worker is shutting down or
// the job's lease is lost. A handler should return promptly once its
// context is done.
//
// A handler must be safe to invoke more than once for the same step:
// the queue provides at-least-once delivery, and a step may be
// re-invoked after a crash or a lost lease even if it had previously
// run to partial completion. Checkpointing progress via StepContext.Set
// is how a handler makes re-invocation cheap rather than unsafe.
//
// A nil return marks the step StepCompleted. A non-nil error marks it
// StepFailed; the scheduler then applies the retry policy to the whole
// job.
type StepHandler func(sc *StepContext) error

// HandlerRegistry maps a job's Type to the StepHandler that should
// drive each of its named steps.
//
// A single job type's steps may all share one handler keyed by step
// name, or use distinct handlers per step name; HandlerRegistry does
// not enforce either shape, it only resolves (jobType, stepName) to a
// handler.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]StepHandler
}

// NewHandlerRegistry returns an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]map[string]StepHandler)}
}

// Register associates handler with the given jobType and stepName. A
// later call with the same pair replaces the previous handler.
func (r *HandlerRegistry) Register(jobType, stepName string, handler StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps, ok := r.handlers[jobType]
	if !ok {
		steps = make(map[string]StepHandler)
		r.handlers[jobType] = steps
	}
	steps[stepName] = handler
}

// Lookup resolves the handler for (jobType, stepName). It returns
// ErrUnknownType if jobType was never registered and a plain error if
// jobType is known but stepName is not.
func (r *HandlerRegistry) Lookup(jobType, stepName string) (StepHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps, ok := r.handlers[jobType]
	if !ok {
		return nil, ErrUnknownType
	}
	h, ok := steps[stepName]
	if !ok {
		return nil, fmt.Errorf("queue: no handler for %s step %s", jobType, stepName)
	}
	return h, nil
}
