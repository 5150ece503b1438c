package sampling

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

const freqKey = "config_probe_accelerometer_built_in_frequency"

func newTestProbe(t *testing.T, cfg ProbeConfig, settings ports.Settings, sink ports.Sink, clk ports.Clock, obs ports.Observability) *ContinuousProbe {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "accelerometer"
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{"X", "Y", "Z"}
	}
	if cfg.FrequencyKey == "" {
		cfg.FrequencyKey = freqKey
	}
	if cfg.DefaultFrequencyHz == 0 {
		cfg.DefaultFrequencyHz = 25
	}
	p, err := NewContinuousProbe(cfg, settings, sink, clk, obs)
	if err != nil {
		t.Fatalf("new probe: %v", err)
	}
	return p
}

func event(i int) *domain.RawEvent {
	return &domain.RawEvent{
		BootNanos: int64(i) * int64(time.Millisecond),
		Values:    []float32{float32(i), float32(i) + 0.5, float32(-i)},
		Accuracy:  2,
		Sensor:    domain.SensorInfo{Name: "BMI160", Vendor: "Bosch", Type: 1, Version: 1, MaxRange: 39.2},
	}
}

func TestProbeEmitsFullBatchesInArrivalOrder(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, 500*time.Second)
	settings := newMapSettings(freqKey, "100")
	sink := &recordingSink{}
	obs := newStubObs()
	p := newTestProbe(t, ProbeConfig{}, settings, sink, clk, obs)

	for i := 0; i < 35; i++ {
		clk.Advance(11 * time.Millisecond)
		if !p.HandleEvent(event(i)) {
			t.Fatalf("event %d unexpectedly dropped", i)
		}
	}

	batches := sink.snapshot()
	if len(batches) != 3 {
		t.Fatalf("expected 3 full batches, got %d", len(batches))
	}
	if p.Stats().Buffered != 5 {
		t.Fatalf("expected 5 buffered samples, got %d", p.Stats().Buffered)
	}
	if !p.Flush() {
		t.Fatalf("expected partial flush")
	}
	batches = sink.snapshot()
	if len(batches) != 4 || batches[3].Len() != 5 {
		t.Fatalf("expected trailing batch of 5, got %d batches", len(batches))
	}

	next := 0
	prevTs := 0.0
	for _, b := range batches {
		if b.Probe != "accelerometer" || b.Sensor.Vendor != "Bosch" {
			t.Fatalf("unexpected batch metadata: %+v", b)
		}
		for i := 0; i < b.Len(); i++ {
			if b.Values[0][i] != float32(next) {
				t.Fatalf("expected sample %d, got %v", next, b.Values[0][i])
			}
			if b.SensorTimestamps[i] != int64(next)*int64(time.Millisecond) {
				t.Fatalf("unexpected raw sensor timestamp %d", b.SensorTimestamps[i])
			}
			if b.EventTimestamps[i] <= prevTs {
				t.Fatalf("timestamps not increasing: %f after %f", b.EventTimestamps[i], prevTs)
			}
			prevTs = b.EventTimestamps[i]
			next++
		}
	}
	if next != 35 {
		t.Fatalf("expected 35 samples across batches, got %d", next)
	}
	if obs.counter(ports.MetricBatchesEmitted) != 4 {
		t.Fatalf("expected 4 emitted batches, got %f", obs.counter(ports.MetricBatchesEmitted))
	}
}

func TestProbeReconcilesEventTimestamps(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, 500*time.Second)
	sink := &recordingSink{}
	p := newTestProbe(t, ProbeConfig{DefaultFrequencyHz: 1000}, newMapSettings(), sink, clk, newStubObs())

	p.HandleEvent(&domain.RawEvent{BootNanos: 10_000_000_000, Values: []float32{1, 2, 3}})

	batches := sink.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected capacity-1 buffer to emit immediately, got %d batches", len(batches))
	}
	if got := batches[0].EventTimestamps[0]; got != 1_699_999_510_000 {
		t.Fatalf("expected reconciled timestamp 1699999510000, got %f", got)
	}
	if got := batches[0].EmittedAt; got != 1_700_000_000 {
		t.Fatalf("expected emitted_at in epoch seconds, got %f", got)
	}
}

func TestProbeDropsEventsFasterThanPeriod(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	obs := newStubObs()
	p := newTestProbe(t, ProbeConfig{}, newMapSettings(freqKey, "50"), &recordingSink{}, clk, obs)

	accepted := 0
	for _, step := range []time.Duration{0, 5, 15, 1, 25} {
		clk.Advance(step * time.Millisecond)
		if p.HandleEvent(event(0)) {
			accepted++
		}
	}
	// period 20ms: t=0 ok, 5 drop, 20 drop (not strictly greater), 21 ok, 46 ok
	if accepted != 3 {
		t.Fatalf("expected 3 accepted events, got %d", accepted)
	}
	if obs.counter(ports.MetricSamplesDropped) != 2 {
		t.Fatalf("expected 2 dropped events, got %f", obs.counter(ports.MetricSamplesDropped))
	}
}

func TestProbeResizesBufferOnFrequencyChange(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	settings := newMapSettings(freqKey, "25")
	sink := &recordingSink{}
	obs := newStubObs()
	p := newTestProbe(t, ProbeConfig{}, settings, sink, clk, obs)

	if st := p.Stats(); st.Capacity != 40 || st.PeriodMs != 40 {
		t.Fatalf("expected capacity 40 and period 40ms, got %+v", st)
	}
	for i := 0; i < 39; i++ {
		clk.Advance(41 * time.Millisecond)
		p.HandleEvent(event(i))
	}
	if p.Stats().Buffered != 39 {
		t.Fatalf("expected 39 buffered samples, got %d", p.Stats().Buffered)
	}

	settings.Set(freqKey, "100")
	clk.Advance(6 * time.Second)
	if !p.HandleEvent(event(99)) {
		t.Fatalf("expected event after resize to be accepted")
	}

	st := p.Stats()
	if st.Capacity != 10 || st.PeriodMs != 10 || st.FrequencyHz != 100 {
		t.Fatalf("expected capacity 10 / period 10ms, got %+v", st)
	}
	if st.Buffered != 1 {
		t.Fatalf("expected cursor reset before the new write, got %d buffered", st.Buffered)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatalf("resize must not emit a batch")
	}
	if obs.counter(ports.MetricSamplesDiscarded) != 39 {
		t.Fatalf("expected 39 discarded samples, got %f", obs.counter(ports.MetricSamplesDiscarded))
	}
}

func TestProbeKeepsFrequencyOnInvalidSetting(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	settings := newMapSettings(freqKey, "100")
	obs := newStubObs()
	p := newTestProbe(t, ProbeConfig{}, settings, &recordingSink{}, clk, obs)

	settings.Set(freqKey, "fast")
	clk.Advance(6 * time.Second)
	p.HandleEvent(event(0))

	if st := p.Stats(); st.FrequencyHz != 100 || st.Capacity != 10 {
		t.Fatalf("expected previous frequency to be kept, got %+v", st)
	}
	if len(obs.warnings) != 1 {
		t.Fatalf("expected one warning, got %v", obs.warnings)
	}
}

func TestProbeSinkErrorDoesNotStopSampling(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	sink := &recordingSink{err: errors.New("sink down")}
	obs := newStubObs()
	p := newTestProbe(t, ProbeConfig{DefaultFrequencyHz: 500}, newMapSettings(), sink, clk, obs)

	for i := 0; i < 4; i++ {
		clk.Advance(3 * time.Millisecond)
		if !p.HandleEvent(event(i)) {
			t.Fatalf("event %d dropped after sink error", i)
		}
	}
	if obs.counter(ports.MetricSinkErrors) != 2 {
		t.Fatalf("expected 2 sink errors, got %f", obs.counter(ports.MetricSinkErrors))
	}
	if p.Stats().Buffered != 0 {
		t.Fatalf("buffer must reset even when the sink fails")
	}
}

func TestProbeIdleFlush(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	sink := &recordingSink{}
	p := newTestProbe(t, ProbeConfig{IdleFlush: time.Second}, newMapSettings(), sink, clk, newStubObs())

	clk.Advance(50 * time.Millisecond)
	p.HandleEvent(event(1))

	clk.Advance(500 * time.Millisecond)
	if p.FlushIdle() {
		t.Fatalf("flushed before idle timeout")
	}
	clk.Advance(600 * time.Millisecond)
	if !p.FlushIdle() {
		t.Fatalf("expected idle flush")
	}
	if b := sink.snapshot(); len(b) != 1 || b[0].Len() != 1 {
		t.Fatalf("expected one single-sample batch, got %d", len(b))
	}
}

func TestProbeRunFlushesOnStop(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	sink := &recordingSink{}
	p := newTestProbe(t, ProbeConfig{FlushOnStop: true}, newMapSettings(), sink, clk, newStubObs())

	clk.Advance(50 * time.Millisecond)
	p.HandleEvent(event(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probe Run did not return after cancel")
	}
	if len(sink.snapshot()) != 1 {
		t.Fatalf("expected partial buffer to be flushed on stop")
	}
}

func TestProbeConcurrentProducersLoseNothing(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	clk.step = 3 * time.Millisecond
	sink := &recordingSink{}
	p := newTestProbe(t, ProbeConfig{DefaultFrequencyHz: 500}, newMapSettings(), sink, clk, newStubObs())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				if p.HandleEvent(event(w*1000 + i)) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	p.Flush()

	total := 0
	seen := make(map[float64]bool)
	for _, b := range sink.snapshot() {
		for _, ts := range b.EventTimestamps {
			if seen[ts] {
				t.Fatalf("duplicate sample at %f", ts)
			}
			seen[ts] = true
		}
		total += b.Len()
	}
	if total != accepted {
		t.Fatalf("expected %d samples at the sink, got %d", accepted, total)
	}
}

func TestProbeResizeDuringConcurrentWritesAccountsForEverySample(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, time.Second)
	clk.step = 3 * time.Millisecond
	settings := newMapSettings(freqKey, "500")
	sink := &recordingSink{}
	obs := newStubObs()
	p := newTestProbe(t, ProbeConfig{DefaultFrequencyHz: 500, SettingRefresh: time.Millisecond}, settings, sink, clk, obs)

	// Alternate between capacity 20 and 2; the odd flip count leaves 50 Hz
	// in place so producers see at least one change after the last flip.
	var flipped atomic.Bool
	go func() {
		for i := 0; i < 101; i++ {
			hz := 50
			if i%2 == 1 {
				hz = 500
			}
			settings.Set(freqKey, strconv.Itoa(hz))
			runtime.Gosched()
		}
		flipped.Store(true)
	}()

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			after := 0
			for i := 0; ; i++ {
				if i >= 250 && flipped.Load() {
					if after++; after > 5 {
						return
					}
				}
				if p.HandleEvent(event(w*100_000 + i)) {
					accepted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	emitted := 0
	for _, b := range sink.snapshot() {
		emitted += b.Len()
	}
	discarded := int(obs.counter(ports.MetricSamplesDiscarded))
	buffered := p.Stats().Buffered

	if got := int64(emitted + discarded + buffered); got != accepted.Load() {
		t.Fatalf("emitted %d + discarded %d + buffered %d = %d, accepted %d",
			emitted, discarded, buffered, got, accepted.Load())
	}
	if obs.counter(ports.MetricBufferResizes) == 0 {
		t.Fatalf("expected at least one resize")
	}
	if st := p.Stats(); st.FrequencyHz != 50 || st.Capacity != 20 {
		t.Fatalf("expected final 50 Hz with capacity 20, got %+v", st)
	}
}

func TestNewContinuousProbeValidates(t *testing.T) {
	obs := newStubObs()
	if _, err := NewContinuousProbe(ProbeConfig{Channels: []string{"X"}, DefaultFrequencyHz: 1}, nil, &recordingSink{}, nil, obs); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, err := NewContinuousProbe(ProbeConfig{Name: "p", DefaultFrequencyHz: 1}, nil, &recordingSink{}, nil, obs); err == nil {
		t.Fatalf("expected error for missing channels")
	}
	if _, err := NewContinuousProbe(ProbeConfig{Name: "p", Channels: []string{"X"}, DefaultFrequencyHz: 1}, nil, nil, nil, obs); err == nil {
		t.Fatalf("expected error for missing sink")
	}
}
