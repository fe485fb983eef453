// Package job defines the stateful representation of a unit of
// scheduling within the renderqueue core.
//
// Spec is what a caller supplies at ingestion time: queue, type, opaque
// payload, tags, priority and an optional idempotency key. Job augments
// Spec with lifecycle state (Status), an ordered list of Steps, timing,
// retry bookkeeping and worker lease information. Job values are
// snapshots of storage state; transitions go through the queue
// package's Ingestor and Claimer operations (the latter driven by its
// Scheduler), never by mutating a Job's fields directly.
//
// Step is a named sub-unit of a Job's work. Steps complete strictly in
// index order; a completed step is never re-run, which is what makes
// resumption after a crash or a retry safe. Each step carries its own
// State bag, a mapping of string keys to opaque values that a handler
// uses to checkpoint partial progress. The core never interprets a
// step's State or a Job's Payload; both are opaque as far as this
// package and its callers are concerned.
//
// Job is not intended to be constructed manually by user code. Its
// fields reflect the authoritative state stored by the queue backend.
package job
