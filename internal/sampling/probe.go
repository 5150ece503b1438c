package sampling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// ProbeConfig describes one continuous-signal probe.
type ProbeConfig struct {
	Name     string
	Channels []string

	// FrequencyKey is the settings key holding the target frequency in Hz
	// as a decimal string.
	FrequencyKey       string
	DefaultFrequencyHz int64
	SettingRefresh     time.Duration

	// IdleFlush flushes a partial buffer once no sample has been accepted
	// for this long. Zero keeps buffer-full as the only flush trigger.
	IdleFlush   time.Duration
	FlushOnStop bool

	// Sensor is used when events carry no sensor description.
	Sensor domain.SensorInfo
}

func (c *ProbeConfig) validate() error {
	if c.Name == "" {
		return errors.New("probe name is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("probe %s: at least one channel is required", c.Name)
	}
	if c.DefaultFrequencyHz <= 0 {
		return fmt.Errorf("probe %s: default frequency must be > 0", c.Name)
	}
	if c.IdleFlush < 0 {
		return fmt.Errorf("probe %s: idle flush must be >= 0", c.Name)
	}
	return nil
}

// ProbeStats is a point-in-time view of a probe's sampling state.
type ProbeStats struct {
	FrequencyHz int64
	PeriodMs    int64
	Capacity    int
	Buffered    int
}

// ContinuousProbe rate-limits raw events into a ring buffer and emits a
// Batch to the sink every time the buffer fills.
type ContinuousProbe struct {
	cfg       ProbeConfig
	sink      ports.Sink
	clock     ports.Clock
	obs       ports.Observability
	frequency *CachedSetting

	mu          sync.Mutex
	limiter     *RateLimiter
	buffer      *RingBuffer
	frequencyHz int64
	badValue    string
	sensor      domain.SensorInfo
}

func NewContinuousProbe(cfg ProbeConfig, settings ports.Settings, sink ports.Sink, clk ports.Clock, obs ports.Observability) (*ContinuousProbe, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("probe %s: sink is required", cfg.Name)
	}
	if obs == nil {
		return nil, fmt.Errorf("probe %s: observability is required", cfg.Name)
	}
	if clk == nil {
		clk = NewSystemClock()
	}
	cfg.Channels = append([]string(nil), cfg.Channels...)

	def := strconv.FormatInt(cfg.DefaultFrequencyHz, 10)
	p := &ContinuousProbe{
		cfg:         cfg,
		sink:        sink,
		clock:       clk,
		obs:         obs,
		frequency:   NewCachedSetting(settings, cfg.FrequencyKey, def, cfg.SettingRefresh, clk.Now),
		limiter:     NewRateLimiter(PeriodForFrequency(cfg.DefaultFrequencyHz)),
		buffer:      NewRingBuffer(CapacityForFrequency(cfg.DefaultFrequencyHz), len(cfg.Channels)),
		frequencyHz: cfg.DefaultFrequencyHz,
		sensor:      cfg.Sensor,
	}

	p.mu.Lock()
	p.refreshLocked()
	p.mu.Unlock()
	return p, nil
}

func (p *ContinuousProbe) Name() string { return p.cfg.Name }

func (p *ContinuousProbe) Stats() ProbeStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProbeStats{
		FrequencyHz: p.frequencyHz,
		PeriodMs:    p.limiter.PeriodMs(),
		Capacity:    p.buffer.Capacity(),
		Buffered:    p.buffer.Len(),
	}
}

// HandleEvent samples ev if the rate limiter admits it. It reports whether
// the event was written to the buffer; rejected events are dropped silently.
func (p *ContinuousProbe) HandleEvent(ev *domain.RawEvent) bool {
	if ev == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.refreshLocked()

	nowMs := wallMillis(p.clock)
	if p.buffer.IsFull() || !p.limiter.Admit(nowMs) {
		p.obs.IncCounter(ports.MetricSamplesDropped, 1)
		return false
	}

	if ev.Sensor != (domain.SensorInfo{}) {
		p.sensor = ev.Sensor
	}
	sensor := p.sensor

	sample := domain.Sample{
		TimestampMs: WallTimestampMs(ev.BootNanos, nowMs, durationMillis(p.clock.SinceBoot())),
		SensorNanos: ev.BootNanos,
		Values:      ev.Values,
		Accuracy:    ev.Accuracy,
	}
	if err := p.buffer.Append(sample, func(f Frame) { p.emit(f, sensor) }); err != nil {
		p.obs.IncCounter(ports.MetricSamplesDropped, 1)
		return false
	}
	p.obs.IncCounter(ports.MetricSamplesAccepted, 1)
	return true
}

// Flush emits whatever is buffered, full or not.
func (p *ContinuousProbe) Flush() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

// FlushIdle flushes a partial buffer when no sample has been accepted for
// the configured idle timeout. It is a no-op when idle flushing is disabled.
func (p *ContinuousProbe) FlushIdle() bool {
	if p.cfg.IdleFlush <= 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buffer.Len() == 0 {
		return false
	}
	if wallMillis(p.clock)-p.limiter.LastAcceptedMs() < durationMillis(p.cfg.IdleFlush) {
		return false
	}
	return p.flushLocked()
}

// Run drives idle flushing until ctx is done, then stops the probe.
func (p *ContinuousProbe) Run(ctx context.Context) {
	if p.cfg.IdleFlush <= 0 {
		<-ctx.Done()
		p.Stop()
		return
	}

	ticker := time.NewTicker(max(p.cfg.IdleFlush/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return
		case <-ticker.C:
			p.FlushIdle()
		}
	}
}

// Stop flushes a partial buffer when FlushOnStop is set.
func (p *ContinuousProbe) Stop() {
	if !p.cfg.FlushOnStop {
		return
	}
	if p.Flush() {
		p.obs.LogInfo("probe_flushed_on_stop", ports.Field{Key: "probe", Value: p.cfg.Name})
	}
}

func (p *ContinuousProbe) flushLocked() bool {
	sensor := p.sensor
	return p.buffer.Flush(func(f Frame) { p.emit(f, sensor) })
}

func (p *ContinuousProbe) refreshLocked() {
	raw, refreshed := p.frequency.Get()
	if !refreshed {
		return
	}

	hz, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || hz <= 0 {
		if raw != p.badValue {
			p.badValue = raw
			p.obs.LogWarn("probe_frequency_invalid",
				ports.Field{Key: "probe", Value: p.cfg.Name},
				ports.Field{Key: "key", Value: p.frequency.Key()},
				ports.Field{Key: "value", Value: raw})
		}
		return
	}
	p.badValue = ""
	p.applyFrequencyLocked(hz)
}

func (p *ContinuousProbe) applyFrequencyLocked(hz int64) {
	p.frequencyHz = hz
	p.limiter.SetPeriod(PeriodForFrequency(hz))

	capacity := CapacityForFrequency(hz)
	if capacity == p.buffer.Capacity() {
		return
	}
	discarded := p.buffer.Resize(capacity, len(p.cfg.Channels))
	p.obs.IncCounter(ports.MetricBufferResizes, 1)
	if discarded > 0 {
		p.obs.IncCounter(ports.MetricSamplesDiscarded, float64(discarded))
	}
	p.obs.LogInfo("probe_buffer_resized",
		ports.Field{Key: "probe", Value: p.cfg.Name},
		ports.Field{Key: "frequency_hz", Value: hz},
		ports.Field{Key: "capacity", Value: capacity},
		ports.Field{Key: "discarded", Value: discarded})
}

// emit runs under the ring buffer lock.
func (p *ContinuousProbe) emit(f Frame, sensor domain.SensorInfo) {
	batch := &domain.Batch{
		Probe:            p.cfg.Name,
		Sensor:           sensor,
		Channels:         append([]string(nil), p.cfg.Channels...),
		EmittedAt:        wallMillis(p.clock) / 1000,
		EventTimestamps:  f.EventTimestamps,
		SensorTimestamps: f.SensorTimestamps,
		Accuracies:       f.Accuracies,
		Values:           f.Values,
	}
	if err := p.sink.Accept(batch); err != nil {
		p.obs.IncCounter(ports.MetricSinkErrors, 1)
		p.obs.LogError("probe_sink_accept_failed", err,
			ports.Field{Key: "probe", Value: p.cfg.Name},
			ports.Field{Key: "sink", Value: p.sink.Name()},
			ports.Field{Key: "samples", Value: f.Len()})
		return
	}
	p.obs.IncCounter(ports.MetricBatchesEmitted, 1)
}
