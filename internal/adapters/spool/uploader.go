package spool

import (
	"context"
	"errors"
	"time"

	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// Transport ships one spooled payload upstream.
type Transport interface {
	Upload(ctx context.Context, name string, payload []byte) error
	Name() string
}

type UploaderConfig struct {
	Interval time.Duration
	MaxFiles int
}

// Uploader periodically drains the spool through a Transport. Failed files
// stay pending and are retried on the next tick.
type Uploader struct {
	spool     *DirSpool
	transport Transport
	cfg       UploaderConfig
	obs       ports.Observability
	now       func() time.Time
}

func NewUploader(spool *DirSpool, transport Transport, cfg UploaderConfig, obs ports.Observability) (*Uploader, error) {
	if spool == nil || transport == nil {
		return nil, errors.New("uploader: spool and transport are required")
	}
	if obs == nil {
		return nil, errors.New("uploader: observability is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 64
	}
	return &Uploader{spool: spool, transport: transport, cfg: cfg, obs: obs, now: time.Now}, nil
}

func (u *Uploader) Run(ctx context.Context) {
	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := u.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				u.obs.LogError("spool_drain_failed", err, ports.Field{Key: "transport", Value: u.transport.Name()})
			}
		}
	}
}

// Drain uploads up to MaxFiles pending files, oldest first, and returns how
// many were archived.
func (u *Uploader) Drain(ctx context.Context) (int, error) {
	names, err := u.spool.Oldest(u.cfg.MaxFiles)
	if err != nil {
		return 0, err
	}

	uploaded := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		payload, err := u.spool.ReadPending(name)
		if err != nil {
			u.fail(name, err)
			continue
		}

		start := u.now()
		if err := u.transport.Upload(ctx, name, payload); err != nil {
			u.fail(name, err)
			continue
		}
		u.spool.RecordUpload(int64(len(payload)), u.now().Sub(start))

		if err := u.spool.Archive(name); err != nil {
			u.fail(name, err)
			continue
		}
		uploaded++
		u.obs.IncCounter(ports.MetricFilesUploaded, 1)
	}
	return uploaded, nil
}

func (u *Uploader) fail(name string, err error) {
	u.obs.IncCounter(ports.MetricUploadErrors, 1)
	u.obs.LogWarn("spool_upload_failed",
		ports.Field{Key: "file", Value: name},
		ports.Field{Key: "transport", Value: u.transport.Name()},
		ports.Field{Key: "error", Value: err.Error()})
}
