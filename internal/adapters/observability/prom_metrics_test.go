package observability

import (
	"errors"
	"testing"

	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPromObs(reg, nil)
	if err != nil {
		t.Fatalf("NewPromObs: %v", err)
	}

	obs.IncCounter(ports.MetricSamplesAccepted, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricSamplesAccepted]); got != 5 {
		t.Fatalf("expected accepted counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricDispatchDropped, 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricDispatchDropped]); got != 2 {
		t.Fatalf("expected drop counter 2, got %f", got)
	}

	obs.SetGauge(ports.MetricClearTime, -1)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricClearTime]); got != -1 {
		t.Fatalf("expected clear time gauge -1, got %f", got)
	}

	obs.ObserveLatency(ports.MetricHealthScanSeconds, 0.5)
	hCollector := obs.histos[ports.MetricHealthScanSeconds].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected scan histogram to record 1 sample, got %d", samples)
	}

	// unknown names are ignored
	obs.IncCounter("nope", 1)
	obs.SetGauge("nope", 1)
	obs.ObserveLatency("nope", 1)
}

func TestPromObsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromObs(reg, nil); err != nil {
		t.Fatalf("first NewPromObs: %v", err)
	}
	if _, err := NewPromObs(reg, nil); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestPromObsLogsThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs, err := NewPromObs(prometheus.NewRegistry(), zap.New(core))
	if err != nil {
		t.Fatalf("NewPromObs: %v", err)
	}

	obs.LogInfo("probe_started", ports.Field{Key: "probe", Value: "accel"})
	obs.LogError("sink_failed", errors.New("boom"), ports.Field{Key: "sink", Value: "spool"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["probe"] != "accel" {
		t.Fatalf("missing probe field: %+v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("unexpected error entry: %+v", entries[1])
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{}); err != nil {
		t.Fatalf("default logger: %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "debug", Format: "console"}); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected bad level error")
	}
	if _, err := NewLogger(LogConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected bad format error")
	}
}
