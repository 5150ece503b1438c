package probeflow

import (
	"context"
	"fmt"
)

// Flow is a convenience builder: Conf → StreamIN → StreamOUT yields an
// Agent without touching AgentOption directly.
type Flow struct {
	cfg  *Config
	opts []AgentOption
}

// StreamInOption configures the source side: event sources, settings, clock.
type StreamInOption func(*Flow)

// StreamOutOption configures where emitted records go.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk and returns a Flow builder.
func Conf(path string, opts ...AgentOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...AgentOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	f.appendOptions(opts...)
	return f, nil
}

func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// StreamIN records source-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records sink-side overrides and builds an Agent ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Agent, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewAgent(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + agent.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	agent, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

// StreamInSource feeds a probe from a caller-owned source.
func StreamInSource(probe string, src EventSource) StreamInOption {
	return func(f *Flow) {
		if src != nil {
			f.appendOptions(WithSource(probe, src))
		}
	}
}

func StreamInSettings(s Settings) StreamInOption {
	return func(f *Flow) {
		if s != nil {
			f.appendOptions(WithSettings(s))
		}
	}
}

func StreamInClock(clk Clock) StreamInOption {
	return func(f *Flow) {
		if clk != nil {
			f.appendOptions(WithClock(clk))
		}
	}
}

// StreamOutSink replaces the dispatcher with s.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// StreamOutWriter adds a writer behind the dispatcher.
func StreamOutWriter(w BatchWriter) StreamOutOption {
	return func(f *Flow) {
		if w != nil {
			f.appendOptions(WithBatchWriter(w))
		}
	}
}

// StreamOutCallback installs a sink built from a callback.
func StreamOutCallback(name string, fn RecordHandler) StreamOutOption {
	return func(f *Flow) {
		f.appendOptions(WithSink(NewCallbackSink(name, fn)))
	}
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

func (f *Flow) appendOptions(opts ...AgentOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
