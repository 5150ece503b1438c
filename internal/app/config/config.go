package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/ProbeFlow/internal/adapters/codec"
	"github.com/ghalamif/ProbeFlow/internal/adapters/mqtt"
	"github.com/ghalamif/ProbeFlow/internal/adapters/observability"
	"github.com/ghalamif/ProbeFlow/internal/adapters/opcua"
	"github.com/ghalamif/ProbeFlow/internal/adapters/sink"
	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/health"
	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/ghalamif/ProbeFlow/internal/software"
)

const (
	SourceSimulated = "simulated"
	SourceOPCUA     = "opcua"
	// SourceExternal leaves event delivery to the embedding program.
	SourceExternal = "external"
)

type Config struct {
	Log        observability.LogConfig `yaml:"log"`
	Metrics    MetricsConfig           `yaml:"metrics"`
	Settings   SettingsConfig          `yaml:"settings"`
	Dispatch   ports.Policy            `yaml:"dispatch"`
	Spool      SpoolConfig             `yaml:"spool"`
	Upload     UploadConfig            `yaml:"upload"`
	MQTT       mqtt.Config             `yaml:"mqtt"`
	Timescale  TimescaleConfig         `yaml:"timescale"`
	ClickHouse sink.ClickHouseConfig   `yaml:"clickhouse"`
	Health     HealthConfig            `yaml:"health"`
	Software   SoftwareConfig          `yaml:"software"`
	Probes     []ProbeConfig           `yaml:"probes"`
}

type MetricsConfig struct {
	// Addr serves /metrics and /healthz; "off" disables the listener.
	Addr string `yaml:"addr"`
}

type SettingsConfig struct {
	File    string        `yaml:"file"`
	Refresh time.Duration `yaml:"refresh"`
}

type SpoolConfig struct {
	Dir   string `yaml:"dir"`
	Codec string `yaml:"codec"`
}

type UploadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxFiles int           `yaml:"max_files"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type HealthConfig struct {
	Enabled           *bool         `yaml:"enabled"`
	Name              string        `yaml:"name"`
	IntervalKey       string        `yaml:"interval_key"`
	DefaultIntervalMs int64         `yaml:"default_interval_ms"`
	PendingThreshold  int           `yaml:"pending_threshold"`
	Poll              time.Duration `yaml:"poll"`
}

func (h HealthConfig) IsEnabled() bool { return h.Enabled == nil || *h.Enabled }

// SoftwareConfig configures the periodic build information report. It is
// off unless enabled.
type SoftwareConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Name              string        `yaml:"name"`
	IntervalKey       string        `yaml:"interval_key"`
	DefaultIntervalMs int64         `yaml:"default_interval_ms"`
	Poll              time.Duration `yaml:"poll"`
}

type ProbeConfig struct {
	Name               string            `yaml:"name"`
	Channels           []string          `yaml:"channels"`
	FrequencyKey       string            `yaml:"frequency_key"`
	DefaultFrequencyHz int64             `yaml:"default_frequency_hz"`
	IdleFlush          time.Duration     `yaml:"idle_flush"`
	FlushOnStop        *bool             `yaml:"flush_on_stop"`
	Sensor             domain.SensorInfo `yaml:"sensor"`
	Source             SourceConfig      `yaml:"source"`
}

func (p ProbeConfig) ShouldFlushOnStop() bool { return p.FlushOnStop == nil || *p.FlushOnStop }

type SourceConfig struct {
	Kind      string       `yaml:"kind"`
	RateHz    float64      `yaml:"rate_hz"`
	Amplitude float64      `yaml:"amplitude"`
	Noise     float64      `yaml:"noise"`
	OPCUA     opcua.Config `yaml:"opcua"`
}

// Load reads a YAML config. A .env file next to it is loaded first, and
// ${VAR} references in the YAML are expanded from the environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates a config built in code.
func (c *Config) Normalize() error {
	c.applyDefaults()
	return c.validate()
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Settings.Refresh == 0 {
		c.Settings.Refresh = 5 * time.Second
	}
	if c.Dispatch.MaxQueueLen == 0 {
		c.Dispatch.MaxQueueLen = 10_000
	}
	if c.Dispatch.MaxBatchSize == 0 {
		c.Dispatch.MaxBatchSize = 256
	}
	if c.Dispatch.IdleSleep == 0 {
		c.Dispatch.IdleSleep = 50 * time.Millisecond
	}
	if c.Dispatch.OnQueueFull == "" {
		c.Dispatch.OnQueueFull = "drop"
	}
	if c.Spool.Dir == "" {
		c.Spool.Dir = "./data/spool"
	}
	if c.Spool.Codec == "" {
		c.Spool.Codec = "json"
	}
	if c.Upload.Interval == 0 {
		c.Upload.Interval = 10 * time.Second
	}
	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = 64
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "probeflow"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "probeflow"
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "probe_records"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "default"
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "probe_records"
	}
	if c.Health.Name == "" {
		c.Health.Name = health.DefaultName
	}
	if c.Health.IntervalKey == "" {
		c.Health.IntervalKey = health.DefaultIntervalKey
	}
	if c.Health.DefaultIntervalMs == 0 {
		c.Health.DefaultIntervalMs = health.DefaultIntervalMs
	}
	if c.Health.PendingThreshold == 0 {
		c.Health.PendingThreshold = health.DefaultPendingThreshold
	}
	if c.Health.Poll == 0 {
		c.Health.Poll = health.DefaultPoll
	}
	if c.Software.Name == "" {
		c.Software.Name = software.DefaultName
	}
	if c.Software.IntervalKey == "" {
		c.Software.IntervalKey = software.DefaultIntervalKey
	}
	if c.Software.DefaultIntervalMs == 0 {
		c.Software.DefaultIntervalMs = software.DefaultIntervalMs
	}
	if c.Software.Poll == 0 {
		c.Software.Poll = software.DefaultPoll
	}

	for i := range c.Probes {
		p := &c.Probes[i]
		if p.FrequencyKey == "" {
			p.FrequencyKey = "config_probe_" + settingSlug(p.Name) + "_frequency"
		}
		if p.Source.Kind == "" {
			p.Source.Kind = SourceSimulated
		}
		if p.Source.Kind == SourceSimulated && p.Source.RateHz == 0 {
			p.Source.RateHz = 200
		}
		if p.Source.Kind == SourceOPCUA {
			p.Source.OPCUA.ApplyDefaults()
		}
	}
}

func (c *Config) validate() error {
	var errs []error

	switch c.Dispatch.OnQueueFull {
	case "drop", "reject":
	default:
		errs = append(errs, fmt.Errorf("dispatch.on_queue_full must be drop or reject, got %q", c.Dispatch.OnQueueFull))
	}
	if c.Dispatch.MaxQueueLen < 0 || c.Dispatch.MaxBatchSize < 0 {
		errs = append(errs, errors.New("dispatch sizes must be positive"))
	}
	if _, err := codec.New(c.Spool.Codec); err != nil {
		errs = append(errs, fmt.Errorf("spool.codec: %w", err))
	}
	if _, err := codec.New(c.MQTT.Codec); err != nil {
		errs = append(errs, fmt.Errorf("mqtt.codec: %w", err))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Upload.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("upload.enabled requires mqtt.broker"))
	}
	if c.Health.DefaultIntervalMs < 0 || c.Health.PendingThreshold < 0 {
		errs = append(errs, errors.New("health interval and threshold must be positive"))
	}
	if c.Software.DefaultIntervalMs < 0 {
		errs = append(errs, errors.New("software interval must be positive"))
	}
	if len(c.Probes) == 0 && !c.Health.IsEnabled() && !c.Software.Enabled {
		errs = append(errs, errors.New("at least one probe, the health monitor or the software report must be enabled"))
	}

	seen := map[string]bool{}
	for i, p := range c.Probes {
		where := fmt.Sprintf("probes[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", where))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate probe name %q", where, p.Name))
		}
		seen[p.Name] = true
		if len(p.Channels) == 0 {
			errs = append(errs, fmt.Errorf("%s.channels must not be empty", where))
		}
		if p.DefaultFrequencyHz <= 0 {
			errs = append(errs, fmt.Errorf("%s.default_frequency_hz must be > 0", where))
		}
		if p.IdleFlush < 0 {
			errs = append(errs, fmt.Errorf("%s.idle_flush must be >= 0", where))
		}
		switch p.Source.Kind {
		case SourceSimulated:
			if p.Source.RateHz <= 0 {
				errs = append(errs, fmt.Errorf("%s.source.rate_hz must be > 0", where))
			}
		case SourceOPCUA:
			if err := p.Source.OPCUA.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s.source.opcua: %w", where, err))
			} else if len(p.Source.OPCUA.Nodes) != len(p.Channels) {
				errs = append(errs, fmt.Errorf("%s.source.opcua: %d nodes for %d channels", where, len(p.Source.OPCUA.Nodes), len(p.Channels)))
			}
		case SourceExternal:
		default:
			errs = append(errs, fmt.Errorf("%s.source.kind %q is not simulated, opcua or external", where, p.Source.Kind))
		}
	}
	return errors.Join(errs...)
}

// settingSlug lowercases the last dotted segment of a probe name, so
// "...builtin.AccelerometerProbe" becomes "accelerometerprobe".
func settingSlug(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}
