package probeflow

import (
	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
	"github.com/ghalamif/ProbeFlow/internal/sampling"
)

// Record is anything a probe or the health monitor emits.
type Record = domain.Record

// Batch is a flushed sensor buffer: parallel arrays of timestamps,
// accuracies and one value array per channel.
type Batch = domain.Batch

// QueueSnapshot is one backpressure measurement of the outbound queue.
type QueueSnapshot = domain.QueueSnapshot

// SoftwareInfo describes the running agent build.
type SoftwareInfo = domain.SoftwareInfo

// RawEvent is a sensor reading before reconciliation and rate limiting.
type RawEvent = domain.RawEvent

// SensorInfo describes the sensor behind a probe.
type SensorInfo = domain.SensorInfo

// EventSource streams raw events for one probe (simulators, OPC UA, device drivers).
type EventSource = ports.EventSource

// Sink receives every emitted record. Accept runs on the sampling path and must not block.
type Sink = ports.Sink

// BatchWriter persists or ships records behind the dispatcher.
type BatchWriter = ports.BatchWriter

// OutboundQueue is what the health monitor measures.
type OutboundQueue = ports.OutboundQueue

// QueueFile is one entry of an OutboundQueue.
type QueueFile = ports.QueueFile

// Settings is the runtime key-value store probes read their frequency from.
type Settings = ports.Settings

// Clock supplies wall and boot-relative time.
type Clock = ports.Clock

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field.
type Field = ports.Field

// ProbeStats is a point-in-time view of a probe's sampling state.
type ProbeStats = sampling.ProbeStats

const (
	KindSensorBatch  = domain.KindSensorBatch
	KindQueueHealth  = domain.KindQueueHealth
	KindSoftwareInfo = domain.KindSoftwareInfo
)
