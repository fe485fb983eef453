package webhook

import (
	"context"

	"github.com/google/uuid"
)

// Store provides durable persistence for subscriptions and their
// delivery history.
type Store interface {

	// Create durably records sub and assigns it an id.
	Create(ctx context.Context, sub *Subscription) error

	// Get returns the subscription identified by id, or (nil, nil) if
	// none exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// List returns every subscription, active or not.
	List(ctx context.Context) ([]*Subscription, error)

	// ListActiveFor returns active subscriptions that Wants(queue, event).
	ListActiveFor(ctx context.Context, queue string, event Event) ([]*Subscription, error)

	// Delete removes a subscription. It is not an error to delete an id
	// that does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// RecordDelivery durably persists d, which must already carry an id.
	RecordDelivery(ctx context.Context, d *Delivery) error

	// ListDeliveries returns delivery history for subscription id,
	// newest first, up to limit (a non-positive limit defaults to 100).
	ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*Delivery, error)

	// MarkFailure increments id's ConsecutiveFailures and returns the
	// new count. If the new count reaches DisableAfterFailures, the
	// subscription is also marked inactive in the same update.
	MarkFailure(ctx context.Context, id uuid.UUID) (uint32, error)

	// MarkSuccess resets id's ConsecutiveFailures to zero.
	MarkSuccess(ctx context.Context, id uuid.UUID) error

	// Enable reactivates a disabled subscription and resets its
	// consecutive-failure count.
	Enable(ctx context.Context, id uuid.UUID) error
}
