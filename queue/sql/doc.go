// Package sql provides a bun-based SQL storage implementation of the
// queue package's interfaces.
//
// This package implements queue.Ingestor, queue.Claimer, queue.Observer,
// queue.Archive, queue.Stats and queue.Retention using a relational
// database via github.com/uptrace/bun.
//
// # Overview
//
// The SQL backend provides:
//
//   - durable persistence of jobs and dead-letter archive entries
//   - atomic state transitions
//   - lease semantics via a worker_lease token plus timeout_at
//   - retry-safe Claim using UPDATE ... RETURNING
//   - priority-ordered claiming across queues
//
// It is compatible with SQLite, PostgreSQL and other bun-supported
// dialects, subject to their transactional guarantees; this module
// targets modernc.org/sqlite as its reference driver.
//
// # Concurrency Model
//
// Claim is implemented using a single atomic UPDATE statement with a
// subquery to avoid race conditions between selection and state
// transition. The operations on a held job check worker_lease in their
// WHERE clause and report a zero-row update as an error rather than
// silently overwriting a lease the caller no longer holds: ErrLeaseLost
// from Heartbeat, FailStep and the step-state calls, ErrCompleteFailed
// from CompleteStep, and ErrJobLost from Retry and DeadLetter. Cancel
// matches on status instead and reports ErrAlreadyTerminal.
//
// SQLite users are strongly encouraged to enable WAL mode and
// configure an appropriate busy_timeout.
//
// # Schema
//
// InitDB (or MustInitDB) creates the jobs, dead_letter_jobs and
// queue_stats tables plus the indexes Claim, Observer.List and
// Archive.List depend on. It is idempotent and runs inside a
// transaction; it does not perform destructive migrations.
//
// # Database Lifecycle
//
// This package does not manage connection pooling, migrations, or
// database lifecycle. The caller is responsible for creating and
// configuring *bun.DB, setting connection limits, enabling WAL/
// busy_timeout for SQLite, and running InitDB before use.
//
// # Limitations
//
// Exactly-once processing is not guaranteed; delivery semantics remain
// at-least-once, matching the queue package's contract.
package sql
