package sink

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
)

// row is the storage shape shared by the SQL sinks.
type row struct {
	probe   string
	kind    string
	ts      time.Time
	payload []byte
}

func toRow(rec domain.Record) (row, error) {
	payload, err := json.Marshal(rec.Fields())
	if err != nil {
		return row{}, fmt.Errorf("marshal %s record: %w", rec.Kind(), err)
	}
	return row{
		probe:   rec.ProbeName(),
		kind:    rec.Kind(),
		ts:      epochSeconds(rec.Timestamp()),
		payload: payload,
	}, nil
}

func epochSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
