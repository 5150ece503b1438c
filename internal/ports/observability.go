package ports

// Observability is the single logging and metrics seam. Metric names are the
// Metric* constants; implementations ignore names they do not know.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	// LogWarn is for degraded but recoverable conditions, such as a bad
	// setting value or a dropped record.
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)
	SetGauge(name string, v float64)
}

// Field is one structured log key/value.
type Field struct {
	Key   string
	Value any
}
