// Package software periodically reports what build of the agent is running.
package software

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/ghalamif/ProbeFlow/internal/sampling"
)

const (
	DefaultName              = "edu.northwestern.cbits.purple_robot_manager.probes.builtin.SoftwareInformationProbe"
	DefaultIntervalKey       = "config_probe_software_frequency"
	DefaultIntervalMs  int64 = 300_000
	DefaultPoll              = time.Second
)

type Config struct {
	Name string
	// IntervalKey holds the minimum time between reports in milliseconds.
	IntervalKey       string
	DefaultIntervalMs int64
	SettingRefresh    time.Duration
	Poll              time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.IntervalKey == "" {
		c.IntervalKey = DefaultIntervalKey
	}
	if c.DefaultIntervalMs <= 0 {
		c.DefaultIntervalMs = DefaultIntervalMs
	}
	if c.Poll <= 0 {
		c.Poll = DefaultPoll
	}
}

// Collector fills in everything but Probe and EmittedAt.
type Collector func() domain.SoftwareInfo

// BuildInfo reads the runtime and the build information embedded in the
// binary. Binaries built without module support report runtime fields only.
func BuildInfo() domain.SoftwareInfo {
	info := domain.SoftwareInfo{
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.MainPath = bi.Main.Path
	info.MainVersion = bi.Main.Version
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.Revision = s.Value
		}
	}
	for _, dep := range bi.Deps {
		m := dep
		if dep.Replace != nil {
			m = dep.Replace
		}
		info.Modules = append(info.Modules, domain.Module{Path: m.Path, Version: m.Version})
	}
	return info
}

// Reporter emits a SoftwareInfo record to the sink whenever the configured
// interval has elapsed.
type Reporter struct {
	cfg      Config
	sink     ports.Sink
	clock    ports.Clock
	obs      ports.Observability
	collect  Collector
	interval *sampling.CachedSetting

	mu         sync.Mutex
	lastReport time.Time
	intervalMs int64
	badValue   string
}

// NewReporter builds a reporter. A nil collect uses BuildInfo.
func NewReporter(cfg Config, sink ports.Sink, settings ports.Settings, clk ports.Clock, obs ports.Observability, collect Collector) (*Reporter, error) {
	if sink == nil {
		return nil, errors.New("software reporter: sink is required")
	}
	if obs == nil {
		return nil, errors.New("software reporter: observability is required")
	}
	if clk == nil {
		clk = sampling.NewSystemClock()
	}
	if collect == nil {
		collect = BuildInfo
	}
	cfg.applyDefaults()

	def := strconv.FormatInt(cfg.DefaultIntervalMs, 10)
	return &Reporter{
		cfg:        cfg,
		sink:       sink,
		clock:      clk,
		obs:        obs,
		collect:    collect,
		interval:   sampling.NewCachedSetting(settings, cfg.IntervalKey, def, cfg.SettingRefresh, clk.Now),
		intervalMs: cfg.DefaultIntervalMs,
	}, nil
}

func (r *Reporter) Name() string { return r.cfg.Name }

// Run calls Tick every Poll until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Poll)
	defer ticker.Stop()

	r.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick reports if the interval has elapsed since the last report and says
// whether it did.
func (r *Reporter) Tick() bool {
	now := r.clock.Now()

	r.mu.Lock()
	r.refreshIntervalLocked()
	due := r.lastReport.IsZero() || now.Sub(r.lastReport) > time.Duration(r.intervalMs)*time.Millisecond
	if due {
		r.lastReport = now
	}
	r.mu.Unlock()

	if !due {
		return false
	}
	r.Report()
	return true
}

// Report emits one record regardless of the interval.
func (r *Reporter) Report() error {
	info := r.collect()
	info.Probe = r.cfg.Name
	info.EmittedAt = float64(r.clock.Now().UnixNano()) / 1e9

	if err := r.sink.Accept(&info); err != nil {
		r.obs.IncCounter(ports.MetricSinkErrors, 1)
		r.obs.LogError("software_sink_accept_failed", err,
			ports.Field{Key: "probe", Value: r.cfg.Name},
			ports.Field{Key: "sink", Value: r.sink.Name()})
		return err
	}
	r.obs.IncCounter(ports.MetricSoftwareReports, 1)
	return nil
}

func (r *Reporter) refreshIntervalLocked() {
	raw, refreshed := r.interval.Get()
	if !refreshed {
		return
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms < 0 {
		if raw != r.badValue {
			r.badValue = raw
			r.obs.LogWarn("software_interval_invalid",
				ports.Field{Key: "key", Value: r.cfg.IntervalKey},
				ports.Field{Key: "value", Value: raw},
				ports.Field{Key: "error", Value: fmt.Sprint(err)})
		}
		return
	}
	r.badValue = ""
	r.intervalMs = ms
}
