package ports

import "github.com/ghalamif/ProbeFlow/internal/domain"

// EventSource delivers raw sensor events (OS sensor subsystem, OPC UA, simulators).
type EventSource interface {
	Start(out chan<- *domain.RawEvent) error
	Stop() error
}
