package ports

import "time"

// Clock exposes the two clock domains sensor timestamps are reconciled across.
type Clock interface {
	// Now is wall-clock time; it may jump on NTP sync or manual change.
	Now() time.Time
	// SinceBoot is monotonic time elapsed since the device (or process) booted.
	SinceBoot() time.Duration
}
