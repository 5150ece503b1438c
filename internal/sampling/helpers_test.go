package sampling

import (
	"sync"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

type fakeClock struct {
	mu   sync.Mutex
	wall time.Time
	boot time.Duration
	step time.Duration
}

func newFakeClock(wallMs int64, boot time.Duration) *fakeClock {
	return &fakeClock{wall: time.UnixMilli(wallMs), boot: boot}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.wall
	if c.step > 0 {
		c.wall = c.wall.Add(c.step)
		c.boot += c.step
	}
	return t
}

func (c *fakeClock) SinceBoot() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boot
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = c.wall.Add(d)
	c.boot += d
}

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
	reads  int
}

func newMapSettings(kv ...string) *mapSettings {
	s := &mapSettings{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (s *mapSettings) GetString(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *mapSettings) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

type recordingSink struct {
	mu      sync.Mutex
	batches []*domain.Batch
	err     error
}

func (s *recordingSink) Accept(rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if b, ok := rec.(*domain.Batch); ok {
		s.batches = append(s.batches, b)
	}
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) snapshot() []*domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Batch(nil), s.batches...)
}

type stubObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errors   []error
	warnings []string
}

func newStubObs() *stubObs { return &stubObs{counters: map[string]float64{}} }

func (o *stubObs) LogInfo(string, ...ports.Field) {}

func (o *stubObs) LogWarn(msg string, _ ...ports.Field) {
	o.mu.Lock()
	o.warnings = append(o.warnings, msg)
	o.mu.Unlock()
}

func (o *stubObs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
}

func (o *stubObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	o.counters[name] += v
	o.mu.Unlock()
}

func (o *stubObs) ObserveLatency(string, float64) {}
func (o *stubObs) SetGauge(string, float64)       {}

func (o *stubObs) counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}
