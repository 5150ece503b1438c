package sink

import (
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ghalamif/ProbeFlow/internal/domain"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "probe_records")

	recs := []domain.Record{
		&domain.QueueSnapshot{Probe: "health", EmittedAt: 1_700_000_000.25, PendingCount: 3},
		&domain.Batch{Probe: "accel", EmittedAt: 1_700_000_001},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO probe_records (probe, kind, ts, payload) VALUES ($1,$2,$3,$4),($5,$6,$7,$8) ON CONFLICT (probe, kind, ts) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"health", domain.KindQueueHealth, time.Unix(1_700_000_000, 250_000_000).UTC(), sqlmock.AnyArg(),
			"accel", domain.KindSensorBatch, time.Unix(1_700_000_001, 0).UTC(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := sink.WriteBatch(recs); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchWithNaNSample(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	batch := &domain.Batch{
		Probe:            "light",
		Channels:         []string{"LUX"},
		EmittedAt:        1_700_000_002,
		EventTimestamps:  []float64{1, 2},
		SensorTimestamps: []int64{1, 2},
		Accuracies:       []int32{0, 0},
		Values:           [][]float32{{float32(math.NaN()), 42}},
	}

	mock.ExpectExec("INSERT INTO probe_records").
		WithArgs("light", domain.KindSensorBatch, time.Unix(1_700_000_002, 0).UTC(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := NewTimescaleSink(db, "probe_records")
	if err := sink.WriteBatch([]domain.Record{batch}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	r, err := toRow(batch)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if !regexp.MustCompile(`"LUX":\[null,42\]`).Match(r.payload) {
		t.Fatalf("unexpected payload: %s", r.payload)
	}
}

func TestTimescaleSinkWriteBatchError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO probe_records").WillReturnError(errors.New("relation does not exist"))

	sink := NewTimescaleSink(db, "probe_records")
	if err := sink.WriteBatch([]domain.Record{&domain.QueueSnapshot{Probe: "h"}}); err == nil {
		t.Fatalf("expected exec error")
	}
}

func TestTimescaleSinkWriteBatchNoRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "probe_records")
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "probe_records")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
