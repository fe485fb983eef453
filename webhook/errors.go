package webhook

import "errors"

var (
	// ErrNoSuchSubscription indicates a lookup or update referenced a
	// subscription id that does not exist.
	ErrNoSuchSubscription = errors.New("webhook: no such subscription")

	// ErrSubscriptionDisabled indicates an attempt to deliver to, or
	// manually redeliver against, a subscription that has been disabled
	// after too many consecutive failures.
	ErrSubscriptionDisabled = errors.New("webhook: subscription disabled")
)

// DisableAfterFailures is the number of consecutive delivery failures
// after which a Subscription is automatically disabled.
const DisableAfterFailures = 20
