package sampling

import (
	"time"

	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// WallTimestampMs converts a boot-relative event timestamp to epoch
// milliseconds. The wall/monotonic offset must be sampled fresh for every
// conversion; a stale offset only makes the result imprecise.
func WallTimestampMs(eventBootNanos int64, nowWallMs, nowMonotonicMs float64) float64 {
	return float64(eventBootNanos)/1e6 + (nowWallMs - nowMonotonicMs)
}

// Reconcile is WallTimestampMs with both readings taken from clk.
func Reconcile(clk ports.Clock, eventBootNanos int64) float64 {
	return WallTimestampMs(eventBootNanos, wallMillis(clk), durationMillis(clk.SinceBoot()))
}

func wallMillis(clk ports.Clock) float64 {
	return float64(clk.Now().UnixNano()) / 1e6
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// SystemClock treats process start as boot. time.Since uses the monotonic
// reading captured in boot, so SinceBoot is immune to wall-clock changes.
type SystemClock struct {
	boot time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{boot: time.Now()}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) SinceBoot() time.Duration { return time.Since(c.boot) }

var _ ports.Clock = (*SystemClock)(nil)
