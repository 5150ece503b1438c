package sampling

import (
	"testing"
	"time"
)

func TestWallTimestampMs(t *testing.T) {
	got := WallTimestampMs(10_000_000_000, 1_700_000_000_000, 500_000)
	if got != 1_699_999_510_000 {
		t.Fatalf("expected 1699999510000, got %f", got)
	}
}

func TestReconcileRecomputesOffsetEachCall(t *testing.T) {
	clk := newFakeClock(1_700_000_000_000, 500*time.Second)

	first := Reconcile(clk, 10_000_000_000)
	if first != 1_699_999_510_000 {
		t.Fatalf("unexpected first conversion %f", first)
	}

	// Wall clock jumps forward (NTP sync) while the monotonic clock does not.
	clk.mu.Lock()
	clk.wall = clk.wall.Add(2 * time.Second)
	clk.mu.Unlock()

	second := Reconcile(clk, 10_000_000_000)
	if second-first != 2000 {
		t.Fatalf("expected offset to follow wall clock by 2000ms, got %f", second-first)
	}
}

func TestSystemClockSinceBootIsMonotonic(t *testing.T) {
	clk := NewSystemClock()
	a := clk.SinceBoot()
	b := clk.SinceBoot()
	if b < a {
		t.Fatalf("SinceBoot went backwards: %s then %s", a, b)
	}
}
