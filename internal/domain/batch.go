package domain

import (
	"math"
	"strconv"
)

// FloatSeries is one channel's values in the wire layout. Non-finite values
// encode as JSON null so a single bad reading does not void the batch.
type FloatSeries []float32

func (s FloatSeries) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(s)*8)
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf = append(buf, "null"...)
			continue
		}
		buf = strconv.AppendFloat(buf, f, 'g', -1, 32)
	}
	return append(buf, ']'), nil
}

// Batch is an owned copy of a probe's ring buffer at flush time.
// Values is indexed [channel][sample].
type Batch struct {
	Probe            string
	Sensor           SensorInfo
	Channels         []string
	EmittedAt        float64
	EventTimestamps  []float64
	SensorTimestamps []int64
	Accuracies       []int32
	Values           [][]float32
}

// Len reports the number of samples in the batch.
func (b *Batch) Len() int { return len(b.EventTimestamps) }

func (b *Batch) ProbeName() string  { return b.Probe }
func (b *Batch) Kind() string       { return KindSensorBatch }
func (b *Batch) Timestamp() float64 { return b.EmittedAt }

// Sample returns the i-th sample of the batch.
func (b *Batch) Sample(i int) Sample {
	vals := make([]float32, len(b.Values))
	for ch := range b.Values {
		vals[ch] = b.Values[ch][i]
	}
	return Sample{
		TimestampMs: b.EventTimestamps[i],
		SensorNanos: b.SensorTimestamps[i],
		Values:      vals,
		Accuracy:    b.Accuracies[i],
	}
}

func (b *Batch) Fields() map[string]any {
	out := map[string]any{
		"PROBE":     b.Probe,
		"TIMESTAMP": b.EmittedAt,
		"SENSOR": map[string]any{
			"MAXIMUM_RANGE": b.Sensor.MaxRange,
			"NAME":          b.Sensor.Name,
			"POWER":         b.Sensor.Power,
			"RESOLUTION":    b.Sensor.Resolution,
			"TYPE":          b.Sensor.Type,
			"VENDOR":        b.Sensor.Vendor,
			"VERSION":       b.Sensor.Version,
		},
		"EVENT_TIMESTAMP":  b.EventTimestamps,
		"SENSOR_TIMESTAMP": b.SensorTimestamps,
		"ACCURACY":         b.Accuracies,
	}
	for i, label := range b.Channels {
		if i < len(b.Values) {
			out[label] = FloatSeries(b.Values[i])
		}
	}
	return out
}
