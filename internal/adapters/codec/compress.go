package codec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ghalamif/ProbeFlow/internal/domain"
)

const (
	Zstd = "zstd"
	LZ4  = "lz4"
)

// Compressed wraps another codec and compresses its output into a
// self-describing frame, so spooled files can be decompressed without
// side information.
type Compressed struct {
	inner Codec
	alg   string
	zenc  *zstd.Encoder
}

func NewCompressed(inner Codec, alg string) (*Compressed, error) {
	c := &Compressed{inner: inner, alg: alg}
	switch alg {
	case Zstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		c.zenc = enc
	case LZ4:
	default:
		return nil, fmt.Errorf("compression %q: want zstd or lz4", alg)
	}
	return c, nil
}

func (c *Compressed) Name() string { return c.inner.Name() + "+" + c.alg }

func (c *Compressed) Extension() string {
	if c.alg == Zstd {
		return c.inner.Extension() + ".zst"
	}
	return c.inner.Extension() + ".lz4"
}

func (c *Compressed) Encode(rec domain.Record) ([]byte, error) {
	raw, err := c.inner.Encode(rec)
	if err != nil {
		return nil, err
	}
	if c.zenc != nil {
		return c.zenc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	}

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}
