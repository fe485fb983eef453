package job

import (
	"time"

	"github.com/google/uuid"
)

// ArchiveEntry is the permanent record created when a Job is moved to
// DeadLetter. It is immutable once written: replaying it creates a new
// Job and never mutates the entry or the original job row.
type ArchiveEntry struct {
	Id uuid.UUID

	JobId   uuid.UUID
	Queue   string
	Type    string
	Payload []byte
	Tags    []string

	FailedStep   string
	LastError    string
	Attempts     uint32
	ArchivedAt   time.Time
	OriginalSpec Spec
}
