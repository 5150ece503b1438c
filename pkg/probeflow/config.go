package probeflow

import (
	"github.com/ghalamif/ProbeFlow/internal/adapters/mqtt"
	"github.com/ghalamif/ProbeFlow/internal/adapters/observability"
	"github.com/ghalamif/ProbeFlow/internal/adapters/opcua"
	"github.com/ghalamif/ProbeFlow/internal/adapters/sink"
	"github.com/ghalamif/ProbeFlow/internal/app/config"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// ProbeConfig describes one sampled sensor.
	ProbeConfig = config.ProbeConfig
	// SourceConfig selects where a probe's events come from.
	SourceConfig = config.SourceConfig
	// HealthConfig configures the backpressure monitor.
	HealthConfig = config.HealthConfig
	// SoftwareConfig configures the periodic build information report.
	SoftwareConfig = config.SoftwareConfig
	// Policy controls the dispatcher queue.
	Policy = ports.Policy
	// LogConfig selects the zap encoder and level.
	LogConfig = observability.LogConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// SettingsConfig points at the runtime settings file.
	SettingsConfig = config.SettingsConfig
	// SpoolConfig configures the on-disk outbound queue.
	SpoolConfig = config.SpoolConfig
	// UploadConfig configures spool draining.
	UploadConfig = config.UploadConfig
	// MQTTConfig configures the broker connection.
	MQTTConfig = mqtt.Config
	// TimescaleConfig configures the postgres writer.
	TimescaleConfig = config.TimescaleConfig
	// ClickHouseConfig configures the ClickHouse writer.
	ClickHouseConfig = sink.ClickHouseConfig
	// OPCUAConfig holds connection and node details for an OPC UA source.
	OPCUAConfig = opcua.Config
)

const (
	SourceSimulated = config.SourceSimulated
	SourceOPCUA     = config.SourceOPCUA
	SourceExternal  = config.SourceExternal
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
