package sql

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTables(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*jobModel)(nil),
		(*archiveModel)(nil),
		(*queueStatsModel)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func createClaimIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_claim").
		Column("queue", "status", "priority", "scheduled_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createTimeoutIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_timeout").
		Column("status", "timeout_at").
		IfNotExists().
		Exec(ctx)
	return err
}

// createIdempotencyIndex is a partial unique index over
// active_idempotency_key rather than idempotency_key, so the
// constraint only binds while a job is pending, scheduled or
// processing: every terminal transition clears active_idempotency_key
// back to "", freeing the key for reuse. Raw SQL because
// bun.CreateIndexQuery has no WHERE clause support.
func createIdempotencyIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_queue_active_idempotency
		ON jobs (queue, active_idempotency_key)
		WHERE active_idempotency_key != ''
	`)
	return err
}

func createUpdatedIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_updated").
		Column("status", "updated_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createArchiveQueueIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*archiveModel)(nil)).
		Index("idx_dead_letter_queue_archived").
		Column("queue", "archived_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	steps := []func(context.Context, bun.IDB) error{
		createTables,
		createClaimIndex,
		createTimeoutIndex,
		createIdempotencyIndex,
		createUpdatedIndex,
		createArchiveQueueIndex,
	}
	for _, step := range steps {
		if err := step(ctx, tx); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	return tx.Commit()
}

// InitDB initializes the database schema required by the SQL backend.
//
// It creates the jobs, dead_letter_jobs and queue_stats tables and
// their indexes inside a single transaction. If any step fails, the
// transaction is rolled back.
//
// InitDB is idempotent and may be safely called multiple times. It
// does not drop or modify existing tables beyond creating missing
// objects.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitDB behaves like InitDB but panics if initialization fails.
//
// This helper is intended for application bootstrap code where
// failure to initialize schema is considered unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
