package probeflow

import (
	"errors"
	"testing"
)

func TestNewCallbackSink(t *testing.T) {
	var received []Record
	sink := NewCallbackSink("cb", func(rec Record) error {
		received = append(received, rec)
		return nil
	})

	input := &Batch{Probe: "accel", EventTimestamps: []float64{1, 2}}
	if err := sink.Accept(input); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if len(received) != 1 || received[0] != input {
		t.Fatalf("unexpected records: %+v", received)
	}
	if sink.Name() != "cb" {
		t.Fatalf("unexpected name %q", sink.Name())
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	if err := sink.Accept(&Batch{}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %q", sink.Name())
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	input := &QueueSnapshot{Probe: "health", PendingCount: 7}
	if err := sink.Accept(input); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if err := sink.Accept(input); err == nil {
		t.Fatalf("expected full buffer to reject")
	}

	if got := <-ch; got != input {
		t.Fatalf("unexpected record %+v", got)
	}

	closeFn()
	if err := sink.Accept(input); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
	if _, open := <-ch; open {
		t.Fatalf("expected channel to be closed")
	}
}
