// Package compress implements the compression façade used by region
// chunk payloads and standalone NBT files: a fixed set of compression
// ids, each backed by a codec that may or may not be registered.
package compress

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"sync"

	"github.com/naughtychas/gitmc-core/internal/gerrs"
	"github.com/pierrec/lz4/v4"
)

// Kind identifies a chunk/NBT compression scheme, matching the id byte
// stored alongside the compressed payload.
type Kind byte

const (
	GZip   Kind = 1
	Zlib   Kind = 2
	Raw    Kind = 3
	LZ4    Kind = 4
	Custom Kind = 127
)

// ExternalBit marks a chunk's compression byte as "payload lives in the
// sibling .mcc file"; the low seven bits still name the Kind used
// inside that file.
const ExternalBit byte = 0x80

// SplitByte decomposes a stored compression byte into its Kind and
// whether the external-storage bit is set.
func SplitByte(b byte) (kind Kind, external bool) {
	return Kind(b &^ ExternalBit), b&ExternalBit != 0
}

// JoinByte packs a Kind and external flag back into a storage byte.
func JoinByte(kind Kind, external bool) byte {
	b := byte(kind)
	if external {
		b |= ExternalBit
	}
	return b
}

var (
	mu         sync.RWMutex
	lz4Enabled bool
)

// EnableLZ4 registers the LZ4 backend (github.com/pierrec/lz4/v4) for
// Kind LZ4. Without calling this, LZ4-compressed chunks are rejected
// with ErrUnsupportedCompression, matching vanilla Minecraft's own
// experimental, rarely-used support for this scheme.
func EnableLZ4() {
	mu.Lock()
	defer mu.Unlock()
	lz4Enabled = true
}

func lz4IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return lz4Enabled
}

// Decompress decodes data according to kind.
func Decompress(data []byte, kind Kind) ([]byte, error) {
	switch kind {
	case GZip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", gerrs.ErrCorruptCompressed, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", gerrs.ErrCorruptCompressed, err)
		}
		return out, nil
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %v", gerrs.ErrCorruptCompressed, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %v", gerrs.ErrCorruptCompressed, err)
		}
		return out, nil
	case Raw:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case LZ4:
		if !lz4IsEnabled() {
			return nil, fmt.Errorf("%w: LZ4 (id 4)", gerrs.ErrUnsupportedCompression)
		}
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", gerrs.ErrCorruptCompressed, err)
		}
		return out, nil
	case Custom:
		return nil, fmt.Errorf("%w: custom (id 127) has no registered backend", gerrs.ErrUnsupportedCompression)
	default:
		return nil, fmt.Errorf("%w: unknown compression id %d", gerrs.ErrUnsupportedCompression, kind)
	}
}

// Compress encodes data according to kind.
func Compress(data []byte, kind Kind) ([]byte, error) {
	var buf bytes.Buffer
	switch kind {
	case GZip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zlib:
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Raw:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case LZ4:
		if !lz4IsEnabled() {
			return nil, fmt.Errorf("%w: LZ4 (id 4)", gerrs.ErrUnsupportedCompression)
		}
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Custom:
		return nil, fmt.Errorf("%w: custom (id 127) has no registered backend", gerrs.ErrUnsupportedCompression)
	default:
		return nil, fmt.Errorf("%w: unknown compression id %d", gerrs.ErrUnsupportedCompression, kind)
	}
}

// DetectStandalone guesses the compression of a standalone NBT file
// (not a region chunk, which always carries an explicit id byte) from
// its magic bytes. Input shorter than two bytes, or whose first byte is
// already a Compound root tag id (uncompressed NBT), is Raw; anything
// without a recognized gzip or zlib header falls back to Zlib.
func DetectStandalone(data []byte) Kind {
	if len(data) < 2 {
		return Raw
	}
	if data[0] == 0x1f && data[1] == 0x8b {
		return GZip
	}
	if data[0] == 0x78 {
		switch data[1] {
		case 0x01, 0x5e, 0x9c, 0xda:
			return Zlib
		}
	}
	if data[0] == 0x0a { // TagCompound
		return Raw
	}
	return Zlib
}
