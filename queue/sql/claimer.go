package sql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/uptrace/bun"
)

// Claimer implements queue.Claimer using a SQL backend.
//
// Every transition is a single UPDATE ... WHERE ... RETURNING (or a
// plain UPDATE with an affected-rows check) so that a lost lease race
// is detected rather than silently overwritten.
//
// workerID is embedded in every lease token this Claimer issues, so
// that ReclaimOwn can find jobs left Processing by a previous instance
// of this same worker without waiting for their lease to expire.
// defaultMaxAttempts is the ceiling SweepExpired/ReclaimOwn apply to a
// job whose Spec never set its own MaxAttempts.
type Claimer struct {
	db                 *bun.DB
	workerID           string
	defaultMaxAttempts uint32
}

// NewClaimer creates a new SQL-backed Claimer. workerID identifies
// this process for crash-recovery purposes (see ReclaimOwn);
// defaultMaxAttempts is the retry ceiling applied to jobs whose Spec
// did not set MaxAttempts.
func NewClaimer(db *bun.DB, workerID string, defaultMaxAttempts uint32) *Claimer {
	return &Claimer{db: db, workerID: workerID, defaultMaxAttempts: defaultMaxAttempts}
}

// Claim selects up to batch eligible jobs, lowest Priority value first
// (Urgent=0 claimed ahead of High/Normal/Low), then oldest ScheduledAt,
// then id, and transitions them to Processing under a freshly generated
// lease token. Eligible jobs are Pending or Scheduled with ScheduledAt
// reached; Processing jobs with an expired lease are left to
// SweepExpired.
func (c *Claimer) Claim(ctx context.Context, queueName string, batch int, lease time.Duration) ([]*job.Job, error) {
	now := time.Now()
	timeoutAt := now.Add(lease)
	token := c.workerID + ":" + uuid.New().String()
	subQuery := c.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		Where("status IN (?, ?) AND scheduled_at <= ?", job.Pending, job.Scheduled, now).
		Order("priority ASC", "scheduled_at ASC", "id ASC").
		Limit(batch)
	if queueName != "" {
		subQuery = subQuery.Where("queue = ?", queueName)
	}
	var models []*jobModel
	_, err := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("status = ?", job.Processing).
		Set("attempts = attempts + 1").
		Set("worker_lease = ?", token).
		Set("timeout_at = ?", timeoutAt).
		Set("started_at = COALESCE(started_at, ?)", now).
		Set("updated_at = ?", now).
		Where("id IN (?)", subQuery).
		Returning("*").
		Exec(ctx, &models)
	if err != nil {
		return nil, err
	}
	jobs := make([]*job.Job, len(models))
	for i, m := range models {
		jobs[i] = m.toJob()
	}
	return jobs, nil
}

// Heartbeat extends jb's lease by lease from now, failing with
// ErrLeaseLost if jb is no longer Processing under its own
// WorkerLease token.
func (c *Claimer) Heartbeat(ctx context.Context, jb *job.Job, lease time.Duration) error {
	now := time.Now()
	newTimeout := now.Add(lease)
	res, err := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("timeout_at = ?", newTimeout).
		Set("updated_at = ?", now).
		Where("id = ? AND status = ? AND worker_lease = ?", jb.Id, job.Processing, jb.WorkerLease).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return queue.ErrLeaseLost
	}
	jb.TimeoutAt = &newTimeout
	jb.UpdatedAt = now
	return nil
}

// SetStepState persists a single state-bag key for the step at index
// by rewriting the whole steps column; SQLite's json_set would avoid
// the round trip but modernc.org/sqlite's JSON1 support is partial, so
// this reads, mutates and writes back the steps slice directly.
func (c *Claimer) SetStepState(ctx context.Context, jb *job.Job, index int, key string, value any) error {
	if jb.Steps[index].State == nil {
		jb.Steps[index].State = make(map[string]any)
	}
	jb.Steps[index].State[key] = value
	return c.writeSteps(ctx, jb)
}

// DeleteStepState removes a single state-bag key for the step at index.
func (c *Claimer) DeleteStepState(ctx context.Context, jb *job.Job, index int, key string) error {
	delete(jb.Steps[index].State, key)
	return c.writeSteps(ctx, jb)
}

func (c *Claimer) writeSteps(ctx context.Context, jb *job.Job) error {
	now := time.Now()
	res, err := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("steps = ?", jb.Steps).
		Set("updated_at = ?", now).
		Where("id = ? AND status = ? AND worker_lease = ?", jb.Id, job.Processing, jb.WorkerLease).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return queue.ErrLeaseLost
	}
	jb.UpdatedAt = now
	return nil
}

// CompleteStep marks the step at index StepCompleted with output. If
// it is the job's last step, the job itself transitions to Completed.
func (c *Claimer) CompleteStep(ctx context.Context, jb *job.Job, index int, output []byte) error {
	jb.Steps[index].Status = job.StepCompleted
	jb.Steps[index].Output = output
	endedAt := time.Now()
	jb.Steps[index].EndedAt = &endedAt

	last := index == len(jb.Steps)-1
	query := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("steps = ?", jb.Steps).
		Set("updated_at = ?", endedAt)
	if last {
		query = query.
			Set("status = ?", job.Completed).
			Set("completed_at = ?", endedAt).
			Set("worker_lease = ?", "").
			Set("timeout_at = NULL").
			Set("active_idempotency_key = ?", "")
	}
	res, err := query.
		Where("id = ? AND status = ? AND worker_lease = ?", jb.Id, job.Processing, jb.WorkerLease).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return queue.ErrCompleteFailed
	}
	jb.UpdatedAt = endedAt
	if last {
		jb.Status = job.Completed
		jb.CompletedAt = &endedAt
		jb.WorkerLease = ""
		jb.TimeoutAt = nil
	}
	return nil
}

// FailStep marks the step at index StepFailed and records errMsg as
// the job's LastError, without transitioning the job.
func (c *Claimer) FailStep(ctx context.Context, jb *job.Job, index int, errMsg string) error {
	jb.Steps[index].Status = job.StepFailed
	jb.Steps[index].Error = errMsg
	now := time.Now()
	res, err := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("steps = ?", jb.Steps).
		Set("last_error = ?", errMsg).
		Set("updated_at = ?", now).
		Where("id = ? AND status = ? AND worker_lease = ?", jb.Id, job.Processing, jb.WorkerLease).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return queue.ErrLeaseLost
	}
	jb.LastError = errMsg
	jb.UpdatedAt = now
	return nil
}

// Retry reschedules jb back to Pending, resetting the failed step to
// StepPending and clearing the lease.
func (c *Claimer) Retry(ctx context.Context, jb *job.Job, failedStep int, delay time.Duration, errMsg string) error {
	jb.Steps[failedStep].Status = job.StepPending
	jb.Steps[failedStep].Error = ""
	now := time.Now()
	nextRun := now.Add(delay)
	res, err := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("status = ?", job.Pending).
		Set("steps = ?", jb.Steps).
		Set("scheduled_at = ?", nextRun).
		Set("worker_lease = ?", "").
		Set("timeout_at = NULL").
		Set("last_error = ?", errMsg).
		Set("retry_count = retry_count + 1").
		Set("updated_at = ?", now).
		Where("id = ? AND status = ? AND worker_lease = ?", jb.Id, job.Processing, jb.WorkerLease).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return queue.ErrJobLost
	}
	jb.Status = job.Pending
	jb.ScheduledAt = nextRun
	jb.WorkerLease = ""
	jb.TimeoutAt = nil
	jb.LastError = errMsg
	jb.RetryCount++
	jb.UpdatedAt = now
	return nil
}

// DeadLetter transitions jb to DeadLetter and writes its ArchiveEntry
// in the same transaction.
func (c *Claimer) DeadLetter(ctx context.Context, jb *job.Job, failedStep int, errMsg string) error {
	failedName := ""
	if failedStep >= 0 && failedStep < len(jb.Steps) {
		failedName = jb.Steps[failedStep].Name
	}
	entry, err := archiveModelFrom(jb, failedName, errMsg)
	if err != nil {
		return err
	}
	now := time.Now()
	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", job.DeadLetter).
			Set("last_error = ?", errMsg).
			Set("worker_lease = ?", "").
			Set("timeout_at = NULL").
			Set("completed_at = ?", now).
			Set("active_idempotency_key = ?", "").
			Set("updated_at = ?", now).
			Where("id = ? AND status = ? AND worker_lease = ?", jb.Id, job.Processing, jb.WorkerLease).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !isAffected(res) {
			return queue.ErrJobLost
		}
		if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return err
		}
		jb.Status = job.DeadLetter
		jb.LastError = errMsg
		jb.WorkerLease = ""
		jb.TimeoutAt = nil
		jb.CompletedAt = &now
		jb.UpdatedAt = now
		return nil
	})
}

// Cancel transitions jb from Pending or Scheduled to Cancelled.
func (c *Claimer) Cancel(ctx context.Context, jb *job.Job) error {
	now := time.Now()
	res, err := c.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("status = ?", job.Cancelled).
		Set("completed_at = ?", now).
		Set("active_idempotency_key = ?", "").
		Set("updated_at = ?", now).
		Where("id = ? AND status IN (?, ?)", jb.Id, job.Pending, job.Scheduled).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return queue.ErrAlreadyTerminal
	}
	jb.Status = job.Cancelled
	jb.CompletedAt = &now
	jb.UpdatedAt = now
	return nil
}

const stallTimeoutError = "stall: lease expired before timeout_at"

// SweepExpired reclaims every Processing job whose lease has expired.
// A job with attempts remaining is returned to Pending immediately,
// tagged with a timeout error, via Retry; a job that has exhausted its
// MaxAttempts (or the configured default, when MaxAttempts is unset)
// is dead-lettered via DeadLetter instead, matching the stall recovery
// policy used for an ordinary step failure.
func (c *Claimer) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now()
	var expired []*jobModel
	if err := c.db.NewSelect().
		Model(&expired).
		Where("status = ? AND timeout_at < ?", job.Processing, now).
		Scan(ctx); err != nil {
		return 0, err
	}
	return c.resolveStalled(ctx, expired, stallTimeoutError)
}

// ReclaimOwn immediately reclaims every Processing job whose lease is
// still tagged with this Claimer's workerID, without waiting for
// timeout_at. It is meant to run once at process start, so that jobs
// left Processing by a crashed previous instance of this same worker
// become eligible for claim again right away instead of sitting idle
// until their lease would otherwise expire.
func (c *Claimer) ReclaimOwn(ctx context.Context) (int64, error) {
	var held []*jobModel
	if err := c.db.NewSelect().
		Model(&held).
		Where("status = ? AND worker_lease LIKE ?", job.Processing, c.workerID+":%").
		Scan(ctx); err != nil {
		return 0, err
	}
	return c.resolveStalled(ctx, held, "stall: reclaimed on worker restart")
}

// resolveStalled retries or dead-letters each row in rows depending on
// whether it has attempts remaining, reusing Retry/DeadLetter so the
// same lease/active-idempotency-key bookkeeping applies as for an
// ordinary step failure. A row whose lease changed out from under the
// sweep between the select and the write is skipped rather than
// failing the whole sweep.
func (c *Claimer) resolveStalled(ctx context.Context, rows []*jobModel, reason string) (int64, error) {
	var count int64
	for _, m := range rows {
		jb := m.toJob()
		index, ok := jb.CurrentStep()
		if !ok {
			index = len(jb.Steps) - 1
		}
		maxAttempts := jb.MaxAttempts
		if maxAttempts == 0 {
			maxAttempts = c.defaultMaxAttempts
		}
		var err error
		if maxAttempts > 0 && jb.Attempts >= maxAttempts {
			err = c.DeadLetter(ctx, jb, index, reason)
		} else {
			err = c.Retry(ctx, jb, index, 0, reason)
		}
		if err != nil {
			if errors.Is(err, queue.ErrJobLost) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}
