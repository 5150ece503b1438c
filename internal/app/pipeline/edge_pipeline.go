package pipeline

import (
	"context"
	"fmt"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// EventHandler consumes raw events; sampling.ContinuousProbe is the usual one.
type EventHandler interface {
	HandleEvent(ev *domain.RawEvent) bool
	Name() string
}

// RunSource starts src and feeds its events to h until ctx is done, then
// stops the source. It returns the first start or stop error.
func RunSource(ctx context.Context, src ports.EventSource, h EventHandler, bufLen int, obs ports.Observability) error {
	if bufLen <= 0 {
		bufLen = 64
	}
	ch := make(chan *domain.RawEvent, bufLen)

	if err := src.Start(ch); err != nil {
		return fmt.Errorf("start source for %s: %w", h.Name(), err)
	}
	obs.LogInfo("source_started", ports.Field{Key: "probe", Value: h.Name()})

	for {
		select {
		case <-ctx.Done():
			if err := src.Stop(); err != nil {
				obs.LogError("source_stop_failed", err, ports.Field{Key: "probe", Value: h.Name()})
				return fmt.Errorf("stop source for %s: %w", h.Name(), err)
			}
			return nil
		case ev := <-ch:
			h.HandleEvent(ev)
		}
	}
}
