package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/ghalamif/ProbeFlow/internal/sampling"
)

const (
	DefaultName                   = "edu.northwestern.cbits.purple_robot_manager.probes.builtin.RobotHealthProbe"
	DefaultIntervalKey            = "config_probe_robot_frequency"
	DefaultIntervalMs       int64 = 60_000
	DefaultPendingThreshold       = 2048
	DefaultExtension              = ".json"
	DefaultPoll                   = time.Second
)

// Config controls the backpressure monitor.
type Config struct {
	Name string
	// IntervalKey holds the minimum time between scans in milliseconds.
	IntervalKey       string
	DefaultIntervalMs int64
	SettingRefresh    time.Duration
	// PendingThreshold is the pending file count at which sizes are no
	// longer summed and PendingSizeSaturated is reported instead.
	PendingThreshold int
	Extension        string
	// Poll is how often Run checks whether a scan is due.
	Poll time.Duration
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
	if c.PendingThreshold <= 0 {
		c.PendingThreshold = DefaultPendingThreshold
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.Poll <= 0 {
		c.Poll = DefaultPoll
	}
}

// Monitor periodically measures the outbound queue and emits a
// QueueSnapshot. At most one scan runs at a time; a trigger that arrives
// while a scan is in flight is skipped, not queued.
type Monitor struct {
	cfg      Config
	queue    ports.OutboundQueue
	sink     ports.Sink
	clock    ports.Clock
	obs      ports.Observability
	interval *sampling.CachedSetting

	scanning atomic.Bool
	inflight sync.WaitGroup

	mu         sync.Mutex
	lastCheck  time.Time
	intervalMs int64
	badValue   string
	last       *domain.QueueSnapshot
}

func NewMonitor(cfg Config, queue ports.OutboundQueue, sink ports.Sink, settings ports.Settings, clk ports.Clock, obs ports.Observability) (*Monitor, error) {
	if queue == nil {
		return nil, errors.New("health monitor: outbound queue is required")
	}
	if sink == nil {
		return nil, errors.New("health monitor: sink is required")
	}
	if obs == nil {
		return nil, errors.New("health monitor: observability is required")
	}
	if clk == nil {
		clk = sampling.NewSystemClock()
	}
	cfg.applyDefaults()

	def := strconv.FormatInt(cfg.DefaultIntervalMs, 10)
	return &Monitor{
		cfg:        cfg,
		queue:      queue,
		sink:       sink,
		clock:      clk,
		obs:        obs,
		interval:   sampling.NewCachedSetting(settings, cfg.IntervalKey, def, cfg.SettingRefresh, clk.Now),
		intervalMs: cfg.DefaultIntervalMs,
	}, nil
}

func (m *Monitor) Name() string { return m.cfg.Name }

// Scanning reports whether a scan is in flight.
func (m *Monitor) Scanning() bool { return m.scanning.Load() }

// Last returns the most recently emitted snapshot.
func (m *Monitor) Last() (domain.QueueSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return domain.QueueSnapshot{}, false
	}
	return *m.last, true
}

// Run calls Tick every Poll until ctx is done, then waits for an in-flight
// scan to finish. Scans themselves are not cancellable.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Poll)
	defer ticker.Stop()

	m.Tick()
	for {
		select {
		case <-ctx.Done():
			m.Wait()
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick starts a background scan if the configured interval has elapsed
// since the last trigger. It reports whether a scan was started.
func (m *Monitor) Tick() bool {
	now := m.clock.Now()

	m.mu.Lock()
	m.refreshIntervalLocked()
	due := m.lastCheck.IsZero() || now.Sub(m.lastCheck) > time.Duration(m.intervalMs)*time.Millisecond
	if due {
		m.lastCheck = now
	}
	m.mu.Unlock()

	if !due {
		return false
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.Scan()
	}()
	return true
}

// Wait blocks until scans started by Tick have returned.
func (m *Monitor) Wait() { m.inflight.Wait() }

// Scan measures the queue and hands the snapshot to the sink. It returns
// false without doing anything when another scan is already running.
func (m *Monitor) Scan() bool {
	_, ok := m.ScanSnapshot()
	return ok
}

// ScanSnapshot is Scan that also returns the snapshot this call emitted.
func (m *Monitor) ScanSnapshot() (domain.QueueSnapshot, bool) {
	if !m.scanning.CompareAndSwap(false, true) {
		m.obs.IncCounter(ports.MetricHealthScansSkipped, 1)
		return domain.QueueSnapshot{}, false
	}
	defer m.scanning.Store(false)

	start := time.Now()
	snap := m.measure()
	m.obs.ObserveLatency(ports.MetricHealthScanSeconds, time.Since(start).Seconds())
	m.obs.IncCounter(ports.MetricHealthScans, 1)
	m.publishGauges(snap)

	m.mu.Lock()
	last := *snap
	m.last = &last
	m.mu.Unlock()

	if err := m.sink.Accept(snap); err != nil {
		m.obs.IncCounter(ports.MetricSinkErrors, 1)
		m.obs.LogError("health_sink_accept_failed", err,
			ports.Field{Key: "probe", Value: m.cfg.Name},
			ports.Field{Key: "sink", Value: m.sink.Name()})
	}
	return last, true
}

func (m *Monitor) measure() *domain.QueueSnapshot {
	snap := &domain.QueueSnapshot{Probe: m.cfg.Name}

	archive, err := m.queue.ListArchiveFiles()
	if err != nil {
		m.obs.LogError("health_archive_scan_failed", err, ports.Field{Key: "probe", Value: m.cfg.Name})
	}
	for _, f := range archive {
		if f.IsFile() {
			snap.ArchiveCount++
			snap.ArchiveSizeBytes += f.Size()
		}
	}

	pending, err := m.queue.ListPendingFiles(m.cfg.Extension)
	if err != nil {
		m.obs.LogError("health_pending_scan_failed", err, ports.Field{Key: "probe", Value: m.cfg.Name})
	}
	snap.PendingCount = len(pending)
	if snap.PendingCount >= m.cfg.PendingThreshold {
		snap.PendingSizeBytes = domain.PendingSizeSaturated
	} else {
		for _, f := range pending {
			snap.PendingSizeBytes += f.Size()
		}
	}

	snap.ThroughputBytesPerSec = m.queue.RecentThroughput()
	snap.EstimatedClearTimeSec = ClearTime(snap.PendingSizeBytes, snap.ThroughputBytesPerSec)
	snap.EmittedAt = float64(m.clock.Now().UnixNano()) / 1e9
	return snap
}

func (m *Monitor) publishGauges(s *domain.QueueSnapshot) {
	m.obs.SetGauge(ports.MetricPendingFiles, float64(s.PendingCount))
	m.obs.SetGauge(ports.MetricPendingBytes, float64(s.PendingSizeBytes))
	m.obs.SetGauge(ports.MetricArchiveFiles, float64(s.ArchiveCount))
	m.obs.SetGauge(ports.MetricArchiveBytes, float64(s.ArchiveSizeBytes))
	m.obs.SetGauge(ports.MetricThroughput, s.ThroughputBytesPerSec)
	m.obs.SetGauge(ports.MetricClearTime, float64(s.EstimatedClearTimeSec))
}

func (m *Monitor) refreshIntervalLocked() {
	raw, refreshed := m.interval.Get()
	if !refreshed {
		return
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms < 0 {
		if raw != m.badValue {
			m.badValue = raw
			m.obs.LogWarn("health_interval_invalid",
				ports.Field{Key: "key", Value: m.cfg.IntervalKey},
				ports.Field{Key: "value", Value: raw},
				ports.Field{Key: "error", Value: fmt.Sprint(err)})
		}
		return
	}
	m.badValue = ""
	m.intervalMs = ms
}

// ClearTime estimates the seconds needed to drain pendingBytes at the given
// throughput, or ClearTimeUnknown when throughput is not positive.
func ClearTime(pendingBytes int64, throughput float64) int64 {
	if !(throughput > 0) {
		return domain.ClearTimeUnknown
	}
	secs := math.Floor(float64(pendingBytes) / throughput)
	if secs >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(secs)
}
