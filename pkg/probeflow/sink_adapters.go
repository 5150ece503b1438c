package probeflow

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("probeflow: channel sink closed")

// RecordHandler receives one emitted record.
type RecordHandler func(Record) error

// NewCallbackSink adapts a function into a Sink so callers can observe
// records without defining structs. fn runs on the sampling path.
func NewCallbackSink(name string, fn RecordHandler) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes records via a channel; it returns the sink, the
// read-only channel, and a close function that the caller should invoke
// during shutdown. Accept never blocks: a record that does not fit in the
// buffer is rejected.
func NewChannelSink(name string, buffer int) (Sink, <-chan Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Record, buffer)
	s := &channelSink{
		name: name,
		ch:   ch,
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   RecordHandler
}

func (s *callbackSink) Accept(rec Record) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if rec == nil {
		return nil
	}
	return s.fn(rec)
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name string
	ch   chan Record

	mu     sync.Mutex
	closed bool
}

func (s *channelSink) Accept(rec Record) error {
	if rec == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrChannelSinkClosed
	}
	select {
	case s.ch <- rec:
		return nil
	default:
		return fmt.Errorf("channel sink %q: buffer full", s.name)
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
