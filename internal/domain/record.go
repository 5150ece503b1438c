package domain

// Record kinds.
const (
	KindSensorBatch  = "sensor_batch"
	KindQueueHealth  = "queue_health"
	KindSoftwareInfo = "software_info"
)

// Record is anything a probe hands to a sink. Fields returns the flat
// key-value layout shipped upstream.
type Record interface {
	ProbeName() string
	Kind() string
	// Timestamp is the emission time in epoch seconds.
	Timestamp() float64
	Fields() map[string]any
}
