package ports

// QueueFile is one entry of the outbound queue's pending or archive store.
// Size may touch the filesystem, so callers should avoid it on large sets.
type QueueFile interface {
	Name() string
	IsFile() bool
	Size() int64
}

// OutboundQueue is the read-only view of the on-disk upload queue.
type OutboundQueue interface {
	ListArchiveFiles() ([]QueueFile, error)
	ListPendingFiles(ext string) ([]QueueFile, error)
	// RecentThroughput is the upload rate in bytes per second as tracked by the queue owner.
	RecentThroughput() float64
}
