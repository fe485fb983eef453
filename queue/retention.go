package queue

import (
	"context"
	"time"

	"github.com/renderqueue/core/job"
)

// Retention provides a mechanism for permanently removing historical
// job rows from storage. It is intended for administrative retention
// management and does not participate in normal job processing.
//
// Retention must only delete jobs in Completed or Cancelled state.
// DeadLetter jobs are never deleted by Retention: their archive entry
// is the permanent audit trail and the job row that backs it must
// outlive any retention window. Purging old archive entries, if ever
// wanted, is a deliberately separate operation this package does not
// provide.
type Retention interface {

	// Purge deletes jobs matching status and, if before is non-nil,
	// whose UpdatedAt is at or before *before. status must be
	// job.Completed or job.Cancelled; any other value, including the
	// zero value, returns ErrBadStatus.
	//
	// Purge returns the number of deleted rows.
	Purge(ctx context.Context, status job.Status, before *time.Time) (int64, error)
}
