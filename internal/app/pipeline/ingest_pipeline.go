package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// ErrQueueFull is returned by Accept under the reject policy.
var ErrQueueFull = errors.New("dispatcher queue full")

// Dispatcher decouples probes from slow writers. Accept only enqueues; Run
// drains the queue in batches and hands each batch to every writer.
type Dispatcher struct {
	q       ports.RecordQueue
	writers []ports.BatchWriter
	pol     ports.Policy
	obs     ports.Observability
}

func NewDispatcher(q ports.RecordQueue, pol ports.Policy, obs ports.Observability, writers ...ports.BatchWriter) *Dispatcher {
	if pol.MaxBatchSize <= 0 {
		pol.MaxBatchSize = 256
	}
	if pol.IdleSleep <= 0 {
		pol.IdleSleep = 50 * time.Millisecond
	}
	return &Dispatcher{q: q, writers: writers, pol: pol, obs: obs}
}

func (d *Dispatcher) Name() string { return "dispatcher" }

func (d *Dispatcher) Accept(rec domain.Record) error {
	if enqueueWithPolicy(d.q, rec, d.pol, d.obs) {
		d.obs.SetGauge(ports.MetricDispatchQueueLength, float64(d.q.Len()))
		return nil
	}
	d.obs.IncCounter(ports.MetricDispatchDropped, 1)
	if d.pol.OnQueueFull == "reject" {
		return ErrQueueFull
	}
	return nil
}

// Run writes batches until ctx is done, then flushes what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		batch := d.q.DequeueBatch(d.pol.MaxBatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				d.Drain()
				return
			case <-time.After(d.pol.IdleSleep):
			}
			continue
		}
		d.write(batch)
	}
}

// Drain writes every queued record synchronously.
func (d *Dispatcher) Drain() {
	for {
		batch := d.q.DequeueBatch(d.pol.MaxBatchSize)
		if len(batch) == 0 {
			return
		}
		d.write(batch)
	}
}

func (d *Dispatcher) write(batch []domain.Record) {
	d.obs.SetGauge(ports.MetricDispatchQueueLength, float64(d.q.Len()))
	for _, w := range d.writers {
		start := time.Now()
		if err := w.WriteBatch(batch); err != nil {
			// no retry; the spool writer is the durable path
			d.obs.IncCounter(ports.MetricSinkErrors, 1)
			d.obs.LogError("writer_batch_failed", err,
				ports.Field{Key: "writer", Value: w.Name()},
				ports.Field{Key: "records", Value: len(batch)})
			continue
		}
		d.obs.ObserveLatency(ports.MetricWriterLatency, time.Since(start).Seconds())
		d.obs.IncCounter(ports.MetricRecordsWritten, float64(len(batch)))
	}
}

func enqueueWithPolicy(q ports.RecordQueue, rec domain.Record, pol ports.Policy, obs ports.Observability) bool {
	if q.Enqueue(rec) {
		return true
	}
	switch pol.OnQueueFull {
	case "drop", "reject", "":
		obs.LogWarn("queue_full_drop",
			ports.Field{Key: "probe", Value: rec.ProbeName()},
			ports.Field{Key: "capacity", Value: pol.MaxQueueLen})
	default:
		obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
	}
	return false
}

var _ ports.Sink = (*Dispatcher)(nil)
