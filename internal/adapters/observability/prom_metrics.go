package observability

import (
	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PromObs implements ports.Observability with prometheus collectors and a
// zap logger. Unknown metric names are ignored.
type PromObs struct {
	logger   *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the pipeline's collectors on reg. A nil reg uses the
// default registerer; a nil logger discards log output.
func NewPromObs(reg prometheus.Registerer, logger *zap.Logger) (*PromObs, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &PromObs{
		logger:   logger,
		counters: map[string]prometheus.Counter{},
		gauges:   map[string]prometheus.Gauge{},
		histos:   map[string]prometheus.Observer{},
	}

	counter := func(name, help string) {
		p.counters[name] = prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) {
		p.gauges[name] = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counter(ports.MetricSamplesAccepted, "Samples written to a probe buffer.")
	counter(ports.MetricSamplesDropped, "Events rejected by the rate limiter.")
	counter(ports.MetricSamplesDiscarded, "Buffered samples lost to a buffer resize.")
	counter(ports.MetricBatchesEmitted, "Batches handed to the probe sink.")
	counter(ports.MetricBufferResizes, "Buffer reallocations after a frequency change.")
	counter(ports.MetricSinkErrors, "Records the sink refused.")
	counter(ports.MetricHealthScans, "Completed backpressure scans.")
	counter(ports.MetricHealthScansSkipped, "Scan triggers skipped because a scan was in flight.")
	counter(ports.MetricDispatchDropped, "Records lost due to dispatcher backpressure.")
	counter(ports.MetricRecordsWritten, "Records committed by batch writers.")
	counter(ports.MetricFilesUploaded, "Spool files uploaded and archived.")
	counter(ports.MetricUploadErrors, "Spool uploads that failed.")
	counter(ports.MetricSoftwareReports, "Software information records emitted.")

	gauge(ports.MetricPendingFiles, "Files waiting in the outbound queue.")
	gauge(ports.MetricPendingBytes, "Bytes waiting in the outbound queue, saturated for large sets.")
	gauge(ports.MetricArchiveFiles, "Files in the archive directory.")
	gauge(ports.MetricArchiveBytes, "Bytes in the archive directory.")
	gauge(ports.MetricThroughput, "Recent upload throughput.")
	gauge(ports.MetricClearTime, "Estimated seconds to drain the outbound queue, -1 if unknown.")
	gauge(ports.MetricDispatchQueueLength, "Records buffered in the dispatcher queue.")

	scan := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricHealthScanSeconds,
		Help:    "Duration of a backpressure scan.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	writer := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricWriterLatency,
		Help:    "Latency from dequeued batch to writer commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	p.histos[ports.MetricHealthScanSeconds] = scan
	p.histos[ports.MetricWriterLatency] = writer

	collectors := []prometheus.Collector{scan, writer}
	for _, c := range p.counters {
		collectors = append(collectors, c)
	}
	for _, g := range p.gauges {
		collectors = append(collectors, g)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PromObs) Logger() *zap.Logger { return p.logger }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
