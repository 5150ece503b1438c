package probeflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghalamif/ProbeFlow/internal/adapters/codec"
	"github.com/ghalamif/ProbeFlow/internal/adapters/mqtt"
	"github.com/ghalamif/ProbeFlow/internal/adapters/observability"
	"github.com/ghalamif/ProbeFlow/internal/adapters/opcua"
	"github.com/ghalamif/ProbeFlow/internal/adapters/queue"
	"github.com/ghalamif/ProbeFlow/internal/adapters/settings"
	"github.com/ghalamif/ProbeFlow/internal/adapters/simulated"
	"github.com/ghalamif/ProbeFlow/internal/adapters/sink"
	"github.com/ghalamif/ProbeFlow/internal/adapters/spool"
	"github.com/ghalamif/ProbeFlow/internal/app/pipeline"
	"github.com/ghalamif/ProbeFlow/internal/health"
	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/ghalamif/ProbeFlow/internal/sampling"
	"github.com/ghalamif/ProbeFlow/internal/software"
)

// AgentOption customizes the dependencies used by Agent.
type AgentOption func(*agentOverrides)

type agentOverrides struct {
	sources       map[string]EventSource
	sink          Sink
	writers       []BatchWriter
	outbound      OutboundQueue
	settings      Settings
	observability Observability
	clock         Clock
}

// WithSource feeds the named probe from src instead of the source in its config.
func WithSource(probe string, src EventSource) AgentOption {
	return func(o *agentOverrides) {
		if o.sources == nil {
			o.sources = map[string]EventSource{}
		}
		o.sources[probe] = src
	}
}

// WithSink sends every emitted record to s, bypassing the dispatcher and its writers.
func WithSink(s Sink) AgentOption {
	return func(o *agentOverrides) {
		o.sink = s
	}
}

// WithBatchWriter adds a writer behind the dispatcher next to the spool.
func WithBatchWriter(w BatchWriter) AgentOption {
	return func(o *agentOverrides) {
		if w != nil {
			o.writers = append(o.writers, w)
		}
	}
}

// WithOutboundQueue points the health monitor at a queue other than the spool.
func WithOutboundQueue(q OutboundQueue) AgentOption {
	return func(o *agentOverrides) {
		o.outbound = q
	}
}

// WithSettings replaces the file-backed settings store.
func WithSettings(s Settings) AgentOption {
	return func(o *agentOverrides) {
		o.settings = s
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) AgentOption {
	return func(o *agentOverrides) {
		o.observability = obs
	}
}

// WithClock replaces the system clock, mostly for tests.
func WithClock(clk Clock) AgentOption {
	return func(o *agentOverrides) {
		o.clock = clk
	}
}

type probeRunner struct {
	probe  *sampling.ContinuousProbe
	source EventSource
}

type closer func() error

// Agent wires sources → probes → dispatcher → writers, the spool uploader and
// the health monitor, and exposes lifecycle hooks for embedding ProbeFlow
// inside any Go service.
type Agent struct {
	cfg        *Config
	obs        ports.Observability
	registry   *prometheus.Registry
	logger     *zap.Logger
	clock      ports.Clock
	settings   ports.Settings
	spool      *spool.DirSpool
	dispatcher *pipeline.Dispatcher
	monitor    *health.Monitor
	reporter   *software.Reporter
	uploader   *spool.Uploader
	probes     map[string]*probeRunner
	order      []string
	closers    []closer

	metricsSrv *http.Server

	mu           sync.Mutex
	started      bool
	cancelProbes context.CancelFunc
	cancelDisp   context.CancelFunc
	probesWG     sync.WaitGroup
	dispDone     chan struct{}
}

// NewAgent bootstraps the default adapters (spool, configured writers,
// simulated or OPC UA sources, Prometheus and zap observability). Callers
// can use AgentOption values to override any dependency.
func NewAgent(cfg *Config, opts ...AgentOption) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	var overrides agentOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	a := &Agent{cfg: cfg, probes: map[string]*probeRunner{}}
	ok := false
	defer func() {
		if !ok {
			_ = a.closeAll()
		}
	}()

	obs := overrides.observability
	if obs == nil {
		logger, err := observability.NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
		prom, err := observability.NewPromObs(a.registry, logger)
		if err != nil {
			return nil, err
		}
		a.logger = logger
		obs = prom
	}
	a.obs = obs

	a.clock = overrides.clock
	if a.clock == nil {
		a.clock = sampling.NewSystemClock()
	}

	a.settings = overrides.settings
	if a.settings == nil {
		file, err := settings.OpenFile(cfg.Settings.File, obs)
		if err != nil {
			return nil, err
		}
		a.settings = file
	}

	spoolCodec, err := codec.New(cfg.Spool.Codec)
	if err != nil {
		return nil, err
	}
	a.spool, err = spool.NewDirSpool(cfg.Spool.Dir, spoolCodec)
	if err != nil {
		return nil, err
	}

	rec := overrides.sink
	if rec == nil {
		writers, err := a.openWriters()
		if err != nil {
			return nil, err
		}
		writers = append(writers, overrides.writers...)
		a.dispatcher = pipeline.NewDispatcher(queue.NewMemQueue(cfg.Dispatch.MaxQueueLen), cfg.Dispatch, obs, writers...)
		rec = a.dispatcher
	}

	for _, pc := range cfg.Probes {
		if err := a.addProbe(pc, rec, overrides.sources[pc.Name]); err != nil {
			return nil, err
		}
	}

	if cfg.Health.IsEnabled() {
		outbound := overrides.outbound
		ext := spoolCodec.Extension()
		if outbound == nil {
			outbound = a.spool
		}
		a.monitor, err = health.NewMonitor(health.Config{
			Name:              cfg.Health.Name,
			IntervalKey:       cfg.Health.IntervalKey,
			DefaultIntervalMs: cfg.Health.DefaultIntervalMs,
			SettingRefresh:    cfg.Settings.Refresh,
			PendingThreshold:  cfg.Health.PendingThreshold,
			Extension:         ext,
			Poll:              cfg.Health.Poll,
		}, outbound, rec, a.settings, a.clock, obs)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Software.Enabled {
		a.reporter, err = software.NewReporter(software.Config{
			Name:              cfg.Software.Name,
			IntervalKey:       cfg.Software.IntervalKey,
			DefaultIntervalMs: cfg.Software.DefaultIntervalMs,
			SettingRefresh:    cfg.Settings.Refresh,
			Poll:              cfg.Software.Poll,
		}, rec, a.settings, a.clock, obs, nil)
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// openWriters builds the spool plus whatever remote writers are configured.
func (a *Agent) openWriters() ([]ports.BatchWriter, error) {
	cfg := a.cfg
	writers := []ports.BatchWriter{a.spool}

	if cfg.Timescale.ConnString != "" {
		ts, err := sink.OpenTimescale(cfg.Timescale.ConnString, cfg.Timescale.Table)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ts.Close)
		writers = append(writers, ts)
	}

	if cfg.ClickHouse.Addr != "" {
		ch, err := sink.OpenClickHouse(cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		writers = append(writers, ch)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.Connect(cfg.MQTT, a.obs)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pub.Close(); return nil })
		if cfg.Upload.Enabled {
			a.uploader, err = spool.NewUploader(a.spool, pub, spool.UploaderConfig{
				Interval: cfg.Upload.Interval,
				MaxFiles: cfg.Upload.MaxFiles,
			}, a.obs)
			if err != nil {
				return nil, err
			}
		} else {
			writers = append(writers, pub)
		}
	}
	return writers, nil
}

func (a *Agent) addProbe(pc ProbeConfig, rec ports.Sink, src EventSource) error {
	probe, err := sampling.NewContinuousProbe(sampling.ProbeConfig{
		Name:               pc.Name,
		Channels:           pc.Channels,
		FrequencyKey:       pc.FrequencyKey,
		DefaultFrequencyHz: pc.DefaultFrequencyHz,
		SettingRefresh:     a.cfg.Settings.Refresh,
		IdleFlush:          pc.IdleFlush,
		FlushOnStop:        pc.ShouldFlushOnStop(),
		Sensor:             pc.Sensor,
	}, a.settings, rec, a.clock, a.obs)
	if err != nil {
		return err
	}

	if src == nil {
		switch pc.Source.Kind {
		case SourceSimulated:
			src, err = simulated.NewSource(simulated.Config{
				RateHz:    pc.Source.RateHz,
				Channels:  len(pc.Channels),
				Amplitude: pc.Source.Amplitude,
				Noise:     pc.Source.Noise,
				Sensor:    pc.Sensor,
			}, a.clock)
		case SourceOPCUA:
			src, err = opcua.NewSource(pc.Source.OPCUA, a.clock, a.obs)
		}
		if err != nil {
			return fmt.Errorf("probe %s: %w", pc.Name, err)
		}
	}

	a.probes[pc.Name] = &probeRunner{probe: probe, source: src}
	a.order = append(a.order, pc.Name)
	return nil
}

// Start launches sources, probes, the dispatcher, the uploader, the health
// monitor and the metrics server. It returns immediately; call Run to block
// on a context instead.
func (a *Agent) Start() error {
	if a == nil {
		return fmt.Errorf("agent is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("agent already started")
	}
	a.started = true

	if a.dispatcher != nil {
		dctx, cancel := context.WithCancel(context.Background())
		a.cancelDisp = cancel
		a.dispDone = make(chan struct{})
		go func() {
			defer close(a.dispDone)
			a.dispatcher.Run(dctx)
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelProbes = cancel

	for _, name := range a.order {
		r := a.probes[name]
		a.goProbe(func() { r.probe.Run(ctx) })
		if r.source == nil {
			continue
		}
		a.goProbe(func() {
			if err := pipeline.RunSource(ctx, r.source, r.probe, 0, a.obs); err != nil {
				a.obs.LogError("source_failed", err, ports.Field{Key: "probe", Value: name})
			}
		})
	}
	if a.monitor != nil {
		a.goProbe(func() { a.monitor.Run(ctx) })
	}
	if a.uploader != nil {
		a.goProbe(func() { a.uploader.Run(ctx) })
	}
	if a.reporter != nil {
		a.goProbe(func() { a.reporter.Run(ctx) })
	}

	a.startMetrics()
	a.obs.LogInfo("agent_started",
		ports.Field{Key: "probes", Value: len(a.order)},
		ports.Field{Key: "health", Value: a.monitor != nil},
		ports.Field{Key: "software", Value: a.reporter != nil})
	return nil
}

func (a *Agent) goProbe(fn func()) {
	a.probesWG.Add(1)
	go func() {
		defer a.probesWG.Done()
		fn()
	}()
}

// Run starts the agent and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops sources and probes (flushing partial buffers), lets the
// dispatcher drain, then closes the metrics server and remote writers.
func (a *Agent) Shutdown(ctx context.Context) error {
	var errs []error

	a.mu.Lock()
	cancelProbes, cancelDisp, dispDone := a.cancelProbes, a.cancelDisp, a.dispDone
	a.cancelProbes, a.cancelDisp = nil, nil
	a.mu.Unlock()

	if cancelProbes != nil {
		cancelProbes()
		if err := waitGroup(ctx, &a.probesWG); err != nil {
			errs = append(errs, fmt.Errorf("stop probes: %w", err))
		}
	}

	if cancelDisp != nil {
		cancelDisp()
		select {
		case <-dispDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("drain dispatcher: %w", ctx.Err()))
		}
	}

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

func (a *Agent) closeAll() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Stats returns the sampling state of every probe keyed by name.
func (a *Agent) Stats() map[string]ProbeStats {
	out := make(map[string]ProbeStats, len(a.probes))
	for name, r := range a.probes {
		out[name] = r.probe.Stats()
	}
	return out
}

// ScanNow runs one health scan synchronously and returns the emitted
// snapshot. It reports false when the monitor is disabled or a scan was
// already in flight.
func (a *Agent) ScanNow() (QueueSnapshot, bool) {
	if a.monitor == nil {
		return QueueSnapshot{}, false
	}
	return a.monitor.ScanSnapshot()
}

// ReportSoftware emits one software information record now, outside the
// reporter's schedule.
func (a *Agent) ReportSoftware() error {
	if a.reporter == nil {
		return fmt.Errorf("software report is not enabled")
	}
	return a.reporter.Report()
}

// Drain uploads pending spool files once, outside the uploader's schedule.
func (a *Agent) Drain(ctx context.Context) (int, error) {
	if a.uploader == nil {
		return 0, fmt.Errorf("upload is not enabled")
	}
	return a.uploader.Drain(ctx)
}

// Spool exposes the on-disk queue the agent writes to.
func (a *Agent) Spool() OutboundQueue { return a.spool }

func (a *Agent) startMetrics() {
	if a.cfg.Metrics.Addr == "off" {
		return
	}

	var metrics http.Handler = promhttp.Handler()
	if a.registry != nil {
		metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := a.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.obs.LogError("metrics_server_exited", err, ports.Field{Key: "addr", Value: srv.Addr})
		}
	}()
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
