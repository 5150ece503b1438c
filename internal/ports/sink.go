package ports

import "github.com/ghalamif/ProbeFlow/internal/domain"

// Sink accepts emitted records. Accept is called while a probe holds its
// buffer lock, so implementations must return quickly and queue any slow
// delivery themselves.
type Sink interface {
	Accept(rec domain.Record) error
	Name() string
}

// BatchWriter persists or transmits records off the sampling path.
type BatchWriter interface {
	WriteBatch(recs []domain.Record) error
	Name() string
}
