package webhook

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the outcome of a single webhook delivery attempt.
type DeliveryStatus uint8

const (
	// DeliveryPending has not yet been attempted.
	DeliveryPending DeliveryStatus = iota
	// DeliveryDelivered received a 2xx response.
	DeliveryDelivered
	// DeliveryFailed failed this attempt but retries remain.
	DeliveryFailed
	// DeliveryExhausted failed every retry attempt.
	DeliveryExhausted
)

// Delivery is one attempted (or pending) notification of an Event to
// a Subscription.
type Delivery struct {
	Id             uuid.UUID
	SubscriptionId uuid.UUID
	Event          Event
	JobId          uuid.UUID
	Payload        []byte

	Attempt      uint32
	Status       DeliveryStatus
	ResponseCode int
	Error        string

	CreatedAt   time.Time
	DeliveredAt *time.Time
}
