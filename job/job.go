package job

import (
	"time"

	"github.com/google/uuid"
)

// Step is a named sub-unit of a Job's work.
//
// Steps are completed strictly in index order; a Step whose Status is
// StepCompleted is never re-run. State is a small mapping-to-opaque-value
// checkpoint bag owned by the handler, used to persist partial progress
// across retries and crashes. The core never interprets its contents.
type Step struct {
	Name      string
	Status    StepStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     string
	Output    []byte
	State     map[string]any
}

// Spec is the ingestion-time description of a Job: everything a caller
// supplies when enqueuing work. It carries no lifecycle or scheduling
// state of its own.
type Spec struct {
	Queue          string   `validate:"required,max=200"`
	Type           string   `validate:"required,max=200"`
	Payload        []byte   `validate:"max=16777216"`
	Tags           []string `validate:"max=32,dive,max=200"`
	Priority       Priority
	IdempotencyKey string `validate:"max=200"`
	Steps          []string `validate:"max=64,dive,max=200"` // step names, in order; defaults to []string{"execute"}
	MaxAttempts    uint32
}

// NewSpec returns a Spec with Normal priority and the default single
// "execute" step, ready to have its Queue/Type/Payload fields set.
func NewSpec(queue, typ string, payload []byte) Spec {
	return Spec{
		Queue:    queue,
		Type:     typ,
		Payload:  payload,
		Priority: Normal,
		Steps:    []string{"execute"},
	}
}

// StepNames returns the step names to drive this spec through, defaulting
// to a single "execute" step when none were specified.
func (s Spec) StepNames() []string {
	if len(s.Steps) == 0 {
		return []string{"execute"}
	}
	return s.Steps
}

// Job represents a unit of scheduling managed by the queue store.
//
// A Job augments Spec with delivery state, timing, and a worker lease.
// Job values returned by the store are snapshots; mutating fields
// directly does not change underlying storage state. Transitions must
// go through the queue package's Ingestor/Claimer operations.
//
// Job instances should be treated as snapshots of storage state.
// Mutating fields directly does not change the underlying queue state.
type Job struct {
	Id uuid.UUID

	Queue          string
	Type           string
	Payload        []byte
	Tags           []string
	Priority       Priority
	IdempotencyKey string

	Status      Status
	Steps       []Step
	Attempts    uint32
	MaxAttempts uint32
	LastError   string

	WorkerLease string
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	TimeoutAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// WaitTime is CreatedAt -> first claim; ProcessingTime is first claim ->
	// terminal; TotalTime is CreatedAt -> terminal. Populated once the job
	// has at least reached Processing.
	WaitTime       time.Duration
	ProcessingTime time.Duration
	TotalTime      time.Duration
	RetryCount     uint32
}

// CurrentStep returns the index of the first step that is not yet
// StepCompleted. It returns (-1, false) once every step is complete.
func (j *Job) CurrentStep() (int, bool) {
	for i := range j.Steps {
		if j.Steps[i].Status != StepCompleted {
			return i, true
		}
	}
	return -1, false
}

// AllStepsCompleted reports whether every step has reached StepCompleted.
func (j *Job) AllStepsCompleted() bool {
	_, ok := j.CurrentStep()
	return !ok
}

// HasTag reports whether the job carries the given tag.
func (j *Job) HasTag(tag string) bool {
	for _, t := range j.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
