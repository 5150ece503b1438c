package domain

import "math"

const (
	// PendingSizeSaturated replaces the pending byte count when the pending
	// set is too large to size cheaply.
	PendingSizeSaturated int64 = math.MaxInt64
	// ClearTimeUnknown is reported when throughput is zero or negative.
	ClearTimeUnknown int64 = -1
)

// QueueSnapshot is the backpressure monitor's view of the outbound queue.
type QueueSnapshot struct {
	Probe                 string
	EmittedAt             float64
	PendingCount          int
	PendingSizeBytes      int64
	ArchiveCount          int
	ArchiveSizeBytes      int64
	ThroughputBytesPerSec float64
	EstimatedClearTimeSec int64
}

// PendingSaturated reports whether PendingSizeBytes is the sentinel.
func (s *QueueSnapshot) PendingSaturated() bool {
	return s.PendingSizeBytes == PendingSizeSaturated
}

func (s *QueueSnapshot) ProbeName() string  { return s.Probe }
func (s *QueueSnapshot) Kind() string       { return KindQueueHealth }
func (s *QueueSnapshot) Timestamp() float64 { return s.EmittedAt }

func (s *QueueSnapshot) Fields() map[string]any {
	return map[string]any{
		"PROBE":         s.Probe,
		"TIMESTAMP":     s.EmittedAt,
		"PENDING_COUNT": s.PendingCount,
		"PENDING_SIZE":  s.PendingSizeBytes,
		"ARCHIVE_COUNT": s.ArchiveCount,
		"ARCHIVE_SIZE":  s.ArchiveSizeBytes,
		"THROUGHPUT":    s.ThroughputBytesPerSec,
		"CLEAR_TIME":    s.EstimatedClearTimeSec,
	}
}
