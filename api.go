package probeflow

import (
	base "github.com/ghalamif/ProbeFlow/pkg/probeflow"
)

// Re-exported errors for convenience.
var (
	ErrUnknownProbe      = base.ErrUnknownProbe
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

const (
	SourceSimulated = base.SourceSimulated
	SourceOPCUA     = base.SourceOPCUA
	SourceExternal  = base.SourceExternal

	KindSensorBatch  = base.KindSensorBatch
	KindQueueHealth  = base.KindQueueHealth
	KindSoftwareInfo = base.KindSoftwareInfo
)

// Type aliases so consumers can import github.com/ghalamif/ProbeFlow directly.
type (
	Config           = base.Config
	ProbeConfig      = base.ProbeConfig
	SourceConfig     = base.SourceConfig
	HealthConfig     = base.HealthConfig
	SoftwareConfig   = base.SoftwareConfig
	Policy           = base.Policy
	LogConfig        = base.LogConfig
	MetricsConfig    = base.MetricsConfig
	SettingsConfig   = base.SettingsConfig
	SpoolConfig      = base.SpoolConfig
	UploadConfig     = base.UploadConfig
	MQTTConfig       = base.MQTTConfig
	TimescaleConfig  = base.TimescaleConfig
	ClickHouseConfig = base.ClickHouseConfig
	OPCUAConfig      = base.OPCUAConfig
	Flow             = base.Flow
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	Agent            = base.Agent
	AgentOption      = base.AgentOption
	Record           = base.Record
	RecordHandler    = base.RecordHandler
	Batch            = base.Batch
	QueueSnapshot    = base.QueueSnapshot
	SoftwareInfo     = base.SoftwareInfo
	RawEvent         = base.RawEvent
	SensorInfo       = base.SensorInfo
	EventSource      = base.EventSource
	Sink             = base.Sink
	BatchWriter      = base.BatchWriter
	OutboundQueue    = base.OutboundQueue
	QueueFile        = base.QueueFile
	Settings         = base.Settings
	Clock            = base.Clock
	Observability    = base.Observability
	Field            = base.Field
	ProbeStats       = base.ProbeStats
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...AgentOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...AgentOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func StreamInSource(probe string, src EventSource) StreamInOption {
	return base.StreamInSource(probe, src)
}

func StreamInSettings(s Settings) StreamInOption {
	return base.StreamInSettings(s)
}

func StreamInClock(clk Clock) StreamInOption {
	return base.StreamInClock(clk)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutWriter(w BatchWriter) StreamOutOption {
	return base.StreamOutWriter(w)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RecordHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Agent and options.
func NewAgent(cfg *Config, opts ...AgentOption) (*Agent, error) {
	return base.NewAgent(cfg, opts...)
}

func WithSource(probe string, src EventSource) AgentOption {
	return base.WithSource(probe, src)
}

func WithSink(s Sink) AgentOption {
	return base.WithSink(s)
}

func WithBatchWriter(w BatchWriter) AgentOption {
	return base.WithBatchWriter(w)
}

func WithOutboundQueue(q OutboundQueue) AgentOption {
	return base.WithOutboundQueue(q)
}

func WithSettings(s Settings) AgentOption {
	return base.WithSettings(s)
}

func WithObservability(obs Observability) AgentOption {
	return base.WithObservability(obs)
}

func WithClock(clk Clock) AgentOption {
	return base.WithClock(clk)
}

// Sink adapters.
func NewCallbackSink(name string, fn RecordHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Record, func()) {
	return base.NewChannelSink(name, buffer)
}
