package codec

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ghalamif/ProbeFlow/internal/domain"
)

func testBatch() *domain.Batch {
	return &domain.Batch{
		Probe:            "accel",
		Sensor:           domain.SensorInfo{Name: "BMI160", Vendor: "Bosch", Type: 1},
		Channels:         []string{"X", "Y"},
		EmittedAt:        1_700_000_000.5,
		EventTimestamps:  []float64{1, 2},
		SensorTimestamps: []int64{10, 20},
		Accuracies:       []int32{3, 3},
		Values:           [][]float32{{0.5, 1.5}, {2.5, 3.5}},
	}
}

func TestJSONEncodesWireFields(t *testing.T) {
	c, err := New("json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := c.Encode(testBatch())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["PROBE"] != "accel" || got["TIMESTAMP"] != 1_700_000_000.5 {
		t.Fatalf("unexpected header fields: %v", got)
	}
	xs, ok := got["X"].([]any)
	if !ok || len(xs) != 2 || xs[1] != 1.5 {
		t.Fatalf("unexpected X channel: %v", got["X"])
	}
	sensor, ok := got["SENSOR"].(map[string]any)
	if !ok || sensor["VENDOR"] != "Bosch" {
		t.Fatalf("unexpected SENSOR: %v", got["SENSOR"])
	}
}

func TestJSONEncodesNonFiniteSamplesAsNull(t *testing.T) {
	b := testBatch()
	b.Values[0][1] = float32(math.NaN())
	b.Values[1][0] = float32(math.Inf(-1))

	raw, err := JSON{}.Encode(b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	xs, _ := got["X"].([]any)
	ys, _ := got["Y"].([]any)
	if len(xs) != 2 || xs[0] != 0.5 || xs[1] != nil {
		t.Fatalf("unexpected X channel: %v", got["X"])
	}
	if len(ys) != 2 || ys[0] != nil || ys[1] != 3.5 {
		t.Fatalf("unexpected Y channel: %v", got["Y"])
	}

	c, _ := New("cbor")
	if _, err := c.Encode(b); err != nil {
		t.Fatalf("cbor Encode: %v", err)
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	c, err := New("cbor")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap := &domain.QueueSnapshot{Probe: "health", PendingCount: 3, PendingSizeBytes: 600, EstimatedClearTimeSec: 12}

	first, err := c.Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := c.Encode(snap)
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs", i)
		}
	}

	var got map[string]any
	if err := cbor.Unmarshal(first, &got); err != nil {
		t.Fatalf("cbor unmarshal: %v", err)
	}
	if got["PROBE"] != "health" || got["CLEAR_TIME"] != uint64(12) {
		t.Fatalf("unexpected decoded snapshot: %v", got)
	}
	if c.Extension() != ".cbor" {
		t.Fatalf("unexpected extension %q", c.Extension())
	}
}

func TestNewRejectsUnknownCodec(t *testing.T) {
	if _, err := New("protobuf"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
	c, err := New("")
	if err != nil || c.Name() != "json" {
		t.Fatalf("empty name should select json, got %v %v", c, err)
	}
}

func TestCompressedCodecs(t *testing.T) {
	plain, _ := New("json")
	want, err := plain.Encode(testBatch())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := []struct {
		name   string
		ext    string
		decode func([]byte) ([]byte, error)
	}{
		{
			name: "json+zstd",
			ext:  ".json.zst",
			decode: func(b []byte) ([]byte, error) {
				dec, err := zstd.NewReader(nil)
				if err != nil {
					return nil, err
				}
				defer dec.Close()
				return dec.DecodeAll(b, nil)
			},
		},
		{
			name: "json+lz4",
			ext:  ".json.lz4",
			decode: func(b []byte) ([]byte, error) {
				return io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.name)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.name, err)
			}
			if c.Name() != tt.name || c.Extension() != tt.ext {
				t.Fatalf("unexpected name/extension %q %q", c.Name(), c.Extension())
			}
			b, err := c.Encode(testBatch())
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := tt.decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("round trip mismatch")
			}
		})
	}

	if _, err := New("cbor+gzip"); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}
