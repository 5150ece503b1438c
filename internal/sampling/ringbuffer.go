package sampling

import (
	"errors"
	"sync"

	"github.com/ghalamif/ProbeFlow/internal/domain"
)

// ErrBufferFull is returned by Append when the caller did not flush first.
var ErrBufferFull = errors.New("sampling: ring buffer full")

// Frame is an owned copy of the populated part of a RingBuffer.
type Frame struct {
	EventTimestamps  []float64
	SensorTimestamps []int64
	Accuracies       []int32
	// Values is indexed [channel][sample].
	Values [][]float32
}

// Len reports the number of samples in the frame.
func (f Frame) Len() int { return len(f.EventTimestamps) }

// RingBuffer is a fixed-capacity, multi-channel sample store. Every method
// takes the buffer's lock; the flush callbacks run while it is held so that
// fill detection, snapshot and reset are one atomic step.
type RingBuffer struct {
	mu          sync.Mutex
	channels    int
	timestamps  []float64
	sensorNanos []int64
	accuracies  []int32
	values      [][]float32
	cursor      int
}

func NewRingBuffer(capacity, channels int) *RingBuffer {
	b := &RingBuffer{}
	b.allocLocked(capacity, channels)
	return b
}

func (b *RingBuffer) allocLocked(capacity, channels int) {
	capacity = max(1, capacity)
	channels = max(0, channels)
	b.channels = channels
	b.timestamps = make([]float64, capacity)
	b.sensorNanos = make([]int64, capacity)
	b.accuracies = make([]int32, capacity)
	b.values = make([][]float32, channels)
	for ch := range b.values {
		b.values[ch] = make([]float32, capacity)
	}
	b.cursor = 0
}

func (b *RingBuffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timestamps)
}

func (b *RingBuffer) Channels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels
}

// Len is the write cursor: the number of unflushed samples.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

func (b *RingBuffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor >= len(b.timestamps)
}

// Append stores s at the cursor. When the write fills the buffer, the
// contents are snapshotted, the cursor reset, and onFull invoked before the
// lock is released. Values beyond the channel count are ignored.
func (b *RingBuffer) Append(s domain.Sample, onFull func(Frame)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cursor >= len(b.timestamps) {
		return ErrBufferFull
	}

	i := b.cursor
	b.timestamps[i] = s.TimestampMs
	b.sensorNanos[i] = s.SensorNanos
	b.accuracies[i] = s.Accuracy
	for ch := range b.values {
		var v float32
		if ch < len(s.Values) {
			v = s.Values[ch]
		}
		b.values[ch][i] = v
	}
	b.cursor++

	if b.cursor >= len(b.timestamps) {
		frame := b.snapshotLocked()
		b.cursor = 0
		if onFull != nil {
			onFull(frame)
		}
	}
	return nil
}

// Flush hands a partially filled buffer to onFlush and resets it. It
// reports false, without calling onFlush, when the buffer is empty.
func (b *RingBuffer) Flush(onFlush func(Frame)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cursor == 0 {
		return false
	}
	frame := b.snapshotLocked()
	b.cursor = 0
	if onFlush != nil {
		onFlush(frame)
	}
	return true
}

// Resize reallocates storage and resets the cursor. Unflushed samples are
// discarded; the count is returned.
func (b *RingBuffer) Resize(capacity, channels int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	discarded := b.cursor
	b.allocLocked(capacity, channels)
	return discarded
}

func (b *RingBuffer) snapshotLocked() Frame {
	n := b.cursor
	f := Frame{
		EventTimestamps:  make([]float64, n),
		SensorTimestamps: make([]int64, n),
		Accuracies:       make([]int32, n),
		Values:           make([][]float32, len(b.values)),
	}
	copy(f.EventTimestamps, b.timestamps[:n])
	copy(f.SensorTimestamps, b.sensorNanos[:n])
	copy(f.Accuracies, b.accuracies[:n])
	for ch := range b.values {
		f.Values[ch] = make([]float32, n)
		copy(f.Values[ch], b.values[ch][:n])
	}
	return f
}
