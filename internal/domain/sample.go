package domain

// RawEvent is a reading as delivered by the sensor subsystem, before any
// timestamp reconciliation or rate limiting.
type RawEvent struct {
	// BootNanos is the event time in nanoseconds since device boot.
	BootNanos int64
	Values    []float32
	Accuracy  int32
	Sensor    SensorInfo
}

// SensorInfo describes the hardware (or virtual) sensor behind a probe.
type SensorInfo struct {
	Name       string  `json:"name" yaml:"name"`
	Vendor     string  `json:"vendor" yaml:"vendor"`
	Type       int32   `json:"type" yaml:"type"`
	Version    int32   `json:"version" yaml:"version"`
	MaxRange   float32 `json:"max_range" yaml:"max_range"`
	Resolution float32 `json:"resolution" yaml:"resolution"`
	Power      float32 `json:"power" yaml:"power"`
}

// Sample is one accepted reading. Values holds one slot per channel.
type Sample struct {
	TimestampMs float64
	SensorNanos int64
	Values      []float32
	Accuracy    int32
}
