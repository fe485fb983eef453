// Package sql implements webhook.Store on top of uptrace/bun and
// modernc.org/sqlite.
//
// Two tables back the store: webhook_subscriptions holds one row per
// registered subscription, with Events stored as a jsonb array;
// webhook_deliveries holds the full delivery history, one row per
// attempted notification, keyed by its own id so Dispatcher can record
// a delivery's outcome by upserting on that id.
//
// ListActiveFor answers the Dispatcher's hot path: it matches active
// subscriptions whose Queue is either empty (catch-all) or equal to
// the job's queue, and whose Events array contains the requested
// event, using SQLite's json_each table-valued function rather than a
// separate join table.
//
// MarkFailure runs inside a transaction so the read-increment-write of
// ConsecutiveFailures, and the disable decision derived from it, are
// atomic under concurrent deliveries to the same subscription.
package sql
