package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/ghalamif/ProbeFlow/internal/domain"
)

// Codec turns a record's wire fields into bytes.
type Codec interface {
	Name() string
	// Extension is the file suffix used when records are spooled, dot included.
	Extension() string
	Encode(rec domain.Record) ([]byte, error)
}

// New returns the codec registered under name: "json" or "cbor",
// optionally followed by "+zstd" or "+lz4" to compress the encoded bytes.
// An empty name selects json.
func New(name string) (Codec, error) {
	base, comp, compressed := strings.Cut(strings.ToLower(name), "+")

	var inner Codec
	switch base {
	case "", "json":
		inner = JSON{}
	case "cbor":
		c, err := NewCBOR()
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, fmt.Errorf("codec %q: want json or cbor", name)
	}
	if !compressed {
		return inner, nil
	}
	return NewCompressed(inner, comp)
}

type JSON struct{}

func (JSON) Name() string      { return "json" }
func (JSON) Extension() string { return ".json" }

func (JSON) Encode(rec domain.Record) ([]byte, error) {
	return json.Marshal(rec.Fields())
}

// CBOR encodes with core deterministic options so identical records produce
// identical bytes.
type CBOR struct {
	mode cbor.EncMode
}

func NewCBOR() (*CBOR, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	return &CBOR{mode: mode}, nil
}

func (c *CBOR) Name() string      { return "cbor" }
func (c *CBOR) Extension() string { return ".cbor" }

func (c *CBOR) Encode(rec domain.Record) ([]byte, error) {
	return c.mode.Marshal(rec.Fields())
}
