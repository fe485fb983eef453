// Package queue implements the durable, multi-step job backend of the
// render queue core: ingestion, claiming, step execution, retry,
// stall recovery, dead-letter archival and stats aggregation.
//
// # Overview
//
// queue models multi-tenant background work as Jobs (see the job
// package) moving through an explicit state machine, backed by
// whatever durable store implements this package's interfaces. The
// package does not mandate a storage backend; the queue/sql
// subpackage provides one over uptrace/bun.
//
// # Delivery Semantics
//
// queue provides at-least-once processing guarantees. A job's step may
// be invoked more than once if a worker crashes before reporting
// completion, the lease expires, or the lease is lost to a concurrent
// claimer. Step handlers must therefore be idempotent with respect to
// re-invocation; StepContext.Set/Get exist so a handler can checkpoint
// partial progress cheaply instead of redoing it.
//
// # Visibility Timeout (Lease Model)
//
// When a job is claimed, it transitions from Pending to Processing and
// receives a lease (TimeoutAt). While the lease is valid, the job is
// not eligible for claim by another worker. If the lease expires
// before the job reaches a terminal state or is explicitly retried,
// StallRecoverer's sweep returns it to Pending. Scheduler extends the
// lease automatically while a step handler is running.
//
// # State Machine
//
// Jobs follow the lifecycle documented on job.Status: Scheduled and
// Pending feed Processing via claim; Processing resolves to Completed,
// back to Pending via Retry, or to the terminal DeadLetter state once
// retries are exhausted. Pending and Scheduled jobs may be Cancelled.
//
// # Retry Policy
//
// Retry behavior is controlled by BackoffConfig and applied by
// Scheduler after a step handler returns an error: if attempts remain,
// the job is returned to Pending with a computed delay; otherwise it
// is moved to DeadLetter and an ArchiveEntry is written in the same
// transaction.
//
// # Interfaces
//
// queue defines the following primary interfaces, each independently
// implementable against a storage backend:
//
//	Ingestor  — accept new work, deduplicating on idempotency key
//	Claimer   — claim, step, retry, dead-letter and cancel jobs
//	Observer  — inspect job state
//	Archive   — inspect and replay dead-lettered work
//	Stats     — per-queue aggregate counters
//	Retention — remove historical Completed/Cancelled rows
//
// # Concurrency Model
//
// Scheduler uses a bounded internal queue and a fixed-size worker pool
// (internal.WorkerPool), decoupling claim polling from step execution.
// Shutdown is graceful: in-flight step handlers are allowed to finish,
// subject to a configurable timeout.
//
// # Storage Expectations
//
// Implementations of Claimer must ensure atomic state transitions,
// durable persistence and correct lease handling, typically via a
// single conditional UPDATE per transition so a lost race is detected
// rather than silently overwritten.
package queue
