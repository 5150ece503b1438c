package sink

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// TimescaleSink stores records as JSONB rows (probe, kind, ts, payload).
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

// OpenTimescale opens a postgres connection through lib/pq.
func OpenTimescale(connString, table string) (*TimescaleSink, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping timescale: %w", err)
	}
	return NewTimescaleSink(db, table), nil
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

func (t *TimescaleSink) Close() error { return t.db.Close() }

func (t *TimescaleSink) WriteBatch(recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}

	// duplicates of (probe, kind, ts) are redeliveries and are ignored
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (probe, kind, ts, payload) VALUES ")

	args := make([]any, 0, len(recs)*4)
	for i, rec := range recs {
		r, err := toRow(rec)
		if err != nil {
			return err
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4))
		args = append(args, r.probe, r.kind, r.ts, r.payload)
	}

	b.WriteString(" ON CONFLICT (probe, kind, ts) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.BatchWriter = (*TimescaleSink)(nil)
