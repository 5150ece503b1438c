package simulated

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// Config drives a synthetic sensor.
type Config struct {
	RateHz   float64 `yaml:"rate_hz"`
	Channels int     `yaml:"-"`
	// Amplitude of the sine carried on every channel; channels are phase shifted.
	Amplitude float64 `yaml:"amplitude"`
	Noise     float64 `yaml:"noise"`
	Sensor    domain.SensorInfo
}

// Source emits events at a fixed rate, much faster than most probes sample,
// so the rate limiter has something to reject.
type Source struct {
	cfg   Config
	clock ports.Clock
	rng   *rand.Rand

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewSource(cfg Config, clk ports.Clock) (*Source, error) {
	if cfg.RateHz <= 0 {
		return nil, errors.New("simulated source: rate_hz must be > 0")
	}
	if cfg.Channels <= 0 {
		return nil, errors.New("simulated source: at least one channel is required")
	}
	if clk == nil {
		return nil, errors.New("simulated source: clock is required")
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1
	}
	return &Source{cfg: cfg, clock: clk, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
}

func (s *Source) Start(out chan<- *domain.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errors.New("simulated source already started")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(out, s.stop, s.done)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (s *Source) loop(out chan<- *domain.RawEvent, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.RateHz))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ev := s.Next()
			select {
			case out <- ev:
			case <-stop:
				return
			default:
				// consumer is behind; a real sensor would overwrite too
			}
		}
	}
}

// Next synthesizes one event stamped with the current boot time.
func (s *Source) Next() *domain.RawEvent {
	boot := s.clock.SinceBoot()
	phase := boot.Seconds() * 2 * math.Pi

	vals := make([]float32, s.cfg.Channels)
	for ch := range vals {
		v := s.cfg.Amplitude * math.Sin(phase+float64(ch)*math.Pi/3)
		if s.cfg.Noise > 0 {
			v += s.rng.NormFloat64() * s.cfg.Noise
		}
		vals[ch] = float32(v)
	}
	return &domain.RawEvent{
		BootNanos: boot.Nanoseconds(),
		Values:    vals,
		Accuracy:  3,
		Sensor:    s.cfg.Sensor,
	}
}

var _ ports.EventSource = (*Source)(nil)
