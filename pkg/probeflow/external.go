package probeflow

import (
	"errors"
	"fmt"
)

// ErrUnknownProbe is returned by Publish for a probe the agent does not run.
var ErrUnknownProbe = errors.New("probeflow: unknown probe")

// Publish hands ev to the named probe as if its source had delivered it. It
// is meant for probes configured with the external source kind, where the
// embedding program owns the sensor callbacks. It reports whether the rate
// limiter admitted the event.
func (a *Agent) Publish(probe string, ev *RawEvent) (bool, error) {
	r, ok := a.probes[probe]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProbe, probe)
	}
	return r.probe.HandleEvent(ev), nil
}

// Flush emits the named probe's partial buffer immediately.
func (a *Agent) Flush(probe string) (bool, error) {
	r, ok := a.probes[probe]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownProbe, probe)
	}
	return r.probe.Flush(), nil
}
