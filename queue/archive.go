package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
)

// Archive provides read access to dead-letter records and drives
// replay of failed work. Archive entries are immutable once written;
// Replay always creates a new Job rather than mutating the original.
type Archive interface {

	// Get returns the archive entry identified by id, or (nil, nil) if
	// none exists.
	Get(ctx context.Context, id uuid.UUID) (*job.ArchiveEntry, error)

	// List returns archive entries newest-first, up to limit (a
	// non-positive limit means a storage-defined default).
	List(ctx context.Context, queue string, limit int) ([]*job.ArchiveEntry, error)

	// Replay ingests a fresh job using the archive entry's original
	// spec and returns its new id. The archived entry and the original
	// dead-letter job row are left untouched.
	Replay(ctx context.Context, id uuid.UUID) (uuid.UUID, error)

	// ReplayMatching replays every archive entry whose original spec
	// carries tag, returning the new ids in archive order. Entries that
	// fail to replay are skipped rather than aborting the batch; callers
	// that need per-entry errors should call Replay directly.
	ReplayMatching(ctx context.Context, tag string) ([]uuid.UUID, error)
}
