package sampling

// RateLimiter admits events no more often than once per period.
// It is not safe for concurrent use; ContinuousProbe serializes access.
type RateLimiter struct {
	periodMs       int64
	lastAcceptedMs float64
	primed         bool
}

func NewRateLimiter(periodMs int64) *RateLimiter {
	return &RateLimiter{periodMs: periodMs}
}

// PeriodMs returns the current target period.
func (l *RateLimiter) PeriodMs() int64 { return l.periodMs }

// LastAcceptedMs is the wall time of the last admitted event, 0 before the first.
func (l *RateLimiter) LastAcceptedMs() float64 { return l.lastAcceptedMs }

// SetPeriod changes the target period without resetting the last accept time.
func (l *RateLimiter) SetPeriod(periodMs int64) {
	if periodMs < 0 {
		periodMs = 0
	}
	l.periodMs = periodMs
}

// Admit reports whether an event at wall time t (ms) may be sampled and, if
// so, records t as the last accepted time. The first event is always admitted.
func (l *RateLimiter) Admit(t float64) bool {
	if l.primed && t-l.lastAcceptedMs <= float64(l.periodMs) {
		return false
	}
	l.primed = true
	l.lastAcceptedMs = t
	return true
}

// PeriodForFrequency returns the sampling period in ms for a frequency in Hz.
func PeriodForFrequency(hz int64) int64 {
	if hz <= 0 {
		return 0
	}
	return 1000 / hz
}

// CapacityForFrequency returns the ring buffer capacity for a frequency in Hz:
// one second worth of samples, at least one.
func CapacityForFrequency(hz int64) int {
	return max(1, int(PeriodForFrequency(hz)))
}
