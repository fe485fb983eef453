package job

import "time"

// QueueStats is a point-in-time aggregate view of one queue's backlog
// and throughput. It is refreshed periodically by a stats aggregator
// and is never computed synchronously on the ingestion or claim path.
type QueueStats struct {
	Queue string

	Pending    uint64
	Scheduled  uint64
	Processing uint64
	Completed  uint64
	DeadLetter uint64
	Cancelled  uint64

	OldestPendingAge time.Duration
	AvgWaitTime      time.Duration
	AvgProcessingTime time.Duration

	RefreshedAt time.Time
}
