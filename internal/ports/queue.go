package ports

import "github.com/ghalamif/ProbeFlow/internal/domain"

// RecordQueue is the bounded buffer between the dispatcher's Accept and its writers.
type RecordQueue interface {
	Enqueue(rec domain.Record) bool
	DequeueBatch(max int) []domain.Record
	Len() int
}
