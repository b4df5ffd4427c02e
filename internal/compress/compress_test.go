package compress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/naughtychas/gitmc-core/internal/gerrs"
)

func TestGZipRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	packed, err := Compress(data, GZip)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	unpacked, err := Decompress(packed, GZip)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(unpacked, data) {
		t.Fatalf("round trip mismatch: got %q, want %q", unpacked, data)
	}
}

func TestZlibRoundTrip(t *testing.T) {
	data := []byte("payload bytes for zlib")
	packed, err := Compress(data, Zlib)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	unpacked, err := Decompress(packed, Zlib)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(unpacked, data) {
		t.Fatalf("round trip mismatch: got %q, want %q", unpacked, data)
	}
}

func TestRawPassthrough(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	packed, _ := Compress(data, Raw)
	unpacked, _ := Decompress(packed, Raw)
	if !bytes.Equal(unpacked, data) {
		t.Fatalf("raw passthrough mismatch")
	}
}

func TestLZ4DisabledByDefault(t *testing.T) {
	_, err := Decompress([]byte{0, 1, 2}, LZ4)
	if !errors.Is(err, gerrs.ErrUnsupportedCompression) {
		t.Fatalf("err = %v, want ErrUnsupportedCompression", err)
	}
}

func TestLZ4RoundTripWhenEnabled(t *testing.T) {
	EnableLZ4()
	data := []byte("lz4 test payload, repeated repeated repeated")
	packed, err := Compress(data, LZ4)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	unpacked, err := Decompress(packed, LZ4)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(unpacked, data) {
		t.Fatalf("round trip mismatch: got %q, want %q", unpacked, data)
	}
}

func TestCustomAlwaysUnsupported(t *testing.T) {
	_, err := Decompress([]byte{0}, Custom)
	if !errors.Is(err, gerrs.ErrUnsupportedCompression) {
		t.Fatalf("err = %v, want ErrUnsupportedCompression", err)
	}
}

func TestSplitJoinByte(t *testing.T) {
	b := JoinByte(Zlib, true)
	kind, external := SplitByte(b)
	if kind != Zlib || !external {
		t.Fatalf("got kind=%d external=%v, want Zlib/true", kind, external)
	}

	b2 := JoinByte(GZip, false)
	kind2, external2 := SplitByte(b2)
	if kind2 != GZip || external2 {
		t.Fatalf("got kind=%d external=%v, want GZip/false", kind2, external2)
	}
}
