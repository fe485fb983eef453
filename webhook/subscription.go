package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Event identifies a job lifecycle transition a Subscription may
// listen for.
type Event string

const (
	// EventJobCompleted fires when a job reaches Completed.
	EventJobCompleted Event = "job.completed"
	// EventJobRetrying fires when a job is returned to Pending after a
	// step failure with retries remaining.
	EventJobRetrying Event = "job.retrying"
	// EventJobDeadLetter fires when a job is moved to DeadLetter.
	EventJobDeadLetter Event = "job.dead_letter"
	// EventJobCancelled fires when a job is cancelled.
	EventJobCancelled Event = "job.cancelled"
)

// Subscription is a caller-registered interest in a set of Events for
// jobs in a given queue (or every queue, when Queue is empty).
type Subscription struct {
	Id uuid.UUID

	Queue  string
	Events []Event
	URL    string
	Secret string

	Active              bool
	ConsecutiveFailures uint32
	DisabledAt          *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Wants reports whether the subscription is active and listens for event.
func (s *Subscription) Wants(queue string, event Event) bool {
	if !s.Active {
		return false
	}
	if s.Queue != "" && s.Queue != queue {
		return false
	}
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}
