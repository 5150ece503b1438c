package queue

import (
	"sync"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// MemQueue is a bounded in-memory FIFO of records.
type MemQueue struct {
	mu   sync.Mutex
	data []domain.Record
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{
		data: make([]domain.Record, 0, capacity),
		cap:  capacity,
	}
}

// Enqueue appends rec and reports false when the queue is at capacity.
func (q *MemQueue) Enqueue(rec domain.Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, rec)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []domain.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Record, max)
	copy(out, q.data[:max])
	n := copy(q.data, q.data[max:])
	clear(q.data[n:])
	q.data = q.data[:n]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.RecordQueue = (*MemQueue)(nil)
