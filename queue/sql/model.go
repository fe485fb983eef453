package sql

import (
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"github.com/uptrace/bun"
)

type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`
	Id            uuid.UUID `bun:"id,pk,type:uuid"`

	Queue          string `bun:"queue,notnull"`
	Type           string `bun:"type,notnull"`
	Payload        []byte `bun:"payload,type:blob"`
	Tags           []string `bun:"tags,type:jsonb"`
	Priority       job.Priority `bun:"priority,notnull,default:2"`
	IdempotencyKey string       `bun:"idempotency_key,nullzero"`

	// ActiveIdempotencyKey mirrors IdempotencyKey while the job is
	// pending, scheduled or processing, and is cleared to "" the moment
	// it reaches a terminal status. The uniqueness constraint is keyed
	// on this column rather than IdempotencyKey, so the key frees up for
	// reuse once the job it named is done, while IdempotencyKey itself
	// keeps the original value for historical lookups.
	ActiveIdempotencyKey string `bun:"active_idempotency_key,notnull,default:''"`

	Status      job.Status `bun:"status,notnull,default:0"`
	Steps       []job.Step `bun:"steps,type:jsonb"`
	Attempts    uint32     `bun:"attempts,notnull,default:0"`
	MaxAttempts uint32     `bun:"max_attempts,notnull,default:0"`
	LastError   string     `bun:"last_error,nullzero"`

	WorkerLease string     `bun:"worker_lease,nullzero"`
	ScheduledAt time.Time  `bun:"scheduled_at,notnull"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
	TimeoutAt   *time.Time `bun:"timeout_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	RetryCount uint32 `bun:"retry_count,notnull,default:0"`
}

func (jm *jobModel) toJob() *job.Job {
	jb := &job.Job{
		Id:             jm.Id,
		Queue:          jm.Queue,
		Type:           jm.Type,
		Payload:        jm.Payload,
		Tags:           jm.Tags,
		Priority:       jm.Priority,
		IdempotencyKey: jm.IdempotencyKey,
		Status:         jm.Status,
		Steps:          jm.Steps,
		Attempts:       jm.Attempts,
		MaxAttempts:    jm.MaxAttempts,
		LastError:      jm.LastError,
		WorkerLease:    jm.WorkerLease,
		ScheduledAt:    jm.ScheduledAt,
		StartedAt:      jm.StartedAt,
		CompletedAt:    jm.CompletedAt,
		TimeoutAt:      jm.TimeoutAt,
		CreatedAt:      jm.CreatedAt,
		UpdatedAt:      jm.UpdatedAt,
		RetryCount:     jm.RetryCount,
	}
	if jb.StartedAt != nil {
		jb.WaitTime = jb.StartedAt.Sub(jb.CreatedAt)
		if jb.CompletedAt != nil {
			jb.ProcessingTime = jb.CompletedAt.Sub(*jb.StartedAt)
			jb.TotalTime = jb.CompletedAt.Sub(jb.CreatedAt)
		}
	}
	return jb
}

func fromSpec(spec job.Spec, delay time.Duration) *jobModel {
	now := time.Now()
	steps := make([]job.Step, len(spec.StepNames()))
	for i, name := range spec.StepNames() {
		steps[i] = job.Step{Name: name, Status: job.StepPending}
	}
	status := job.Pending
	if delay > 0 {
		status = job.Scheduled
	}
	return &jobModel{
		Id:                   uuid.New(),
		Queue:                spec.Queue,
		Type:                 spec.Type,
		Payload:              spec.Payload,
		Tags:                 spec.Tags,
		Priority:             spec.Priority,
		IdempotencyKey:       spec.IdempotencyKey,
		ActiveIdempotencyKey: spec.IdempotencyKey,
		Status:               status,
		Steps:                steps,
		MaxAttempts:          spec.MaxAttempts,
		ScheduledAt:          now.Add(delay),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

type archiveModel struct {
	bun.BaseModel `bun:"table:dead_letter_jobs"`
	Id            uuid.UUID `bun:"id,pk,type:uuid"`

	JobId   uuid.UUID `bun:"job_id,notnull,type:uuid"`
	Queue   string    `bun:"queue,notnull"`
	Type    string    `bun:"type,notnull"`
	Payload []byte    `bun:"payload,type:blob"`
	Tags    []string  `bun:"tags,type:jsonb"`

	FailedStep   string    `bun:"failed_step,nullzero"`
	LastError    string    `bun:"last_error,nullzero"`
	Attempts     uint32    `bun:"attempts,notnull,default:0"`
	ArchivedAt   time.Time `bun:"archived_at,nullzero,notnull,default:current_timestamp"`
	OriginalSpec []byte    `bun:"original_spec,type:jsonb"`
}

func (am *archiveModel) toEntry() (*job.ArchiveEntry, error) {
	var spec job.Spec
	if len(am.OriginalSpec) > 0 {
		if err := jsonUnmarshal(am.OriginalSpec, &spec); err != nil {
			return nil, err
		}
	}
	return &job.ArchiveEntry{
		Id:           am.Id,
		JobId:        am.JobId,
		Queue:        am.Queue,
		Type:         am.Type,
		Payload:      am.Payload,
		Tags:         am.Tags,
		FailedStep:   am.FailedStep,
		LastError:    am.LastError,
		Attempts:     am.Attempts,
		ArchivedAt:   am.ArchivedAt,
		OriginalSpec: spec,
	}, nil
}

func archiveModelFrom(jb *job.Job, failedStep, errMsg string) (*archiveModel, error) {
	spec := job.Spec{
		Queue:          jb.Queue,
		Type:           jb.Type,
		Payload:        jb.Payload,
		Tags:           jb.Tags,
		Priority:       jb.Priority,
		IdempotencyKey: jb.IdempotencyKey,
		MaxAttempts:    jb.MaxAttempts,
	}
	for _, st := range jb.Steps {
		spec.Steps = append(spec.Steps, st.Name)
	}
	raw, err := jsonMarshal(spec)
	if err != nil {
		return nil, err
	}
	return &archiveModel{
		Id:           uuid.New(),
		JobId:        jb.Id,
		Queue:        jb.Queue,
		Type:         jb.Type,
		Payload:      jb.Payload,
		Tags:         jb.Tags,
		FailedStep:   failedStep,
		LastError:    errMsg,
		Attempts:     jb.Attempts,
		ArchivedAt:   time.Now(),
		OriginalSpec: raw,
	}, nil
}

type queueStatsModel struct {
	bun.BaseModel `bun:"table:queue_stats"`
	Queue         string `bun:"queue,pk"`

	Pending    uint64 `bun:"pending,notnull,default:0"`
	Scheduled  uint64 `bun:"scheduled,notnull,default:0"`
	Processing uint64 `bun:"processing,notnull,default:0"`
	Completed  uint64 `bun:"completed,notnull,default:0"`
	DeadLetter uint64 `bun:"dead_letter,notnull,default:0"`
	Cancelled  uint64 `bun:"cancelled,notnull,default:0"`

	OldestPendingAgeMs  int64 `bun:"oldest_pending_age_ms,notnull,default:0"`
	AvgWaitTimeMs       int64 `bun:"avg_wait_time_ms,notnull,default:0"`
	AvgProcessingTimeMs int64 `bun:"avg_processing_time_ms,notnull,default:0"`

	RefreshedAt time.Time `bun:"refreshed_at,nullzero,notnull,default:current_timestamp"`
}

func (qs *queueStatsModel) toStats() *job.QueueStats {
	return &job.QueueStats{
		Queue:             qs.Queue,
		Pending:           qs.Pending,
		Scheduled:         qs.Scheduled,
		Processing:        qs.Processing,
		Completed:         qs.Completed,
		DeadLetter:        qs.DeadLetter,
		Cancelled:         qs.Cancelled,
		OldestPendingAge:  time.Duration(qs.OldestPendingAgeMs) * time.Millisecond,
		AvgWaitTime:       time.Duration(qs.AvgWaitTimeMs) * time.Millisecond,
		AvgProcessingTime: time.Duration(qs.AvgProcessingTimeMs) * time.Millisecond,
		RefreshedAt:       qs.RefreshedAt,
	}
}
