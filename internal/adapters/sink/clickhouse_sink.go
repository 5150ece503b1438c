package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// batchPreparer is the part of driver.Conn the sink needs.
type batchPreparer interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// ClickHouseSink appends records to a MergeTree table in one native batch
// per WriteBatch call.
type ClickHouseSink struct {
	conn    batchPreparer
	closer  func() error
	table   string
	timeout time.Duration
}

func OpenClickHouse(cfg ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	s := NewClickHouseSink(conn, cfg.Table)
	s.closer = conn.Close
	return s, nil
}

func NewClickHouseSink(conn batchPreparer, table string) *ClickHouseSink {
	return &ClickHouseSink{conn: conn, table: table, timeout: 30 * time.Second}
}

func (c *ClickHouseSink) Name() string { return "clickhouse" }

func (c *ClickHouseSink) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *ClickHouseSink) WriteBatch(recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+c.table+" (probe, kind, ts, payload)")
	if err != nil {
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	for _, rec := range recs {
		r, err := toRow(rec)
		if err != nil {
			batch.Abort()
			return err
		}
		if err := batch.Append(r.probe, r.kind, r.ts, string(r.payload)); err != nil {
			batch.Abort()
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse send: %w", err)
	}
	return nil
}

var _ ports.BatchWriter = (*ClickHouseSink)(nil)
