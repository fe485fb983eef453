// Package webhook delivers signed HTTP notifications of job lifecycle
// events to subscriber-supplied URLs.
//
// # Overview
//
// A Subscription names a queue (or "" for every queue), a set of
// Events it cares about, a target URL and a signing Secret. When a
// matching event fires, Dispatcher builds a Delivery, signs it with
// HMAC-SHA256 and POSTs it with an independent retry/backoff schedule
// from job retries.
//
// # Delivery Guarantees
//
// Delivery is at-least-once and asynchronous from job processing: a
// webhook failure never affects the underlying job's state. A
// Subscription is automatically disabled after DisableAfterFailures
// consecutive delivery failures and must be re-enabled explicitly.
//
// # Signing
//
// Every delivery carries:
//
//	X-Webhook-Event:     the event name
//	X-Webhook-Delivery:  the Delivery's id
//	X-Webhook-Timestamp: unix seconds at signing time
//	X-Webhook-Signature: "sha256=" + hex HMAC-SHA256 over the raw POST
//	                     body, keyed by the subscription's current Secret
//
// The POST body is the event payload wrapped in an envelope carrying
// event, delivered_at and delivery_id. Subscribers verify by
// recomputing the HMAC over the exact bytes received, and should
// reject requests whose timestamp is too far in the past to guard
// against replay.
//
// # Secret Rotation
//
// A Subscription holds exactly one Secret, and Store has no operation
// that replaces it. Dispatcher signs every attempt of a Delivery with
// the Secret of the Subscription snapshot taken when the Delivery was
// queued; retries of that Delivery reuse the same snapshot.
package webhook
