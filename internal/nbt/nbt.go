package nbt

import (
	"bytes"
	"fmt"

	"github.com/naughtychas/gitmc-core/internal/compress"
	"github.com/naughtychas/gitmc-core/internal/gerrs"
)

// ReadFile decodes a standalone compressed NBT file (e.g. level.dat) into
// a Document, auto-detecting its compression scheme.
func ReadFile(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", gerrs.ErrMalformedNbt)
	}
	kind := compress.DetectStandalone(data)
	raw, err := compress.Decompress(data, kind)
	if err != nil {
		return nil, err
	}
	return NewReader(bytes.NewReader(raw)).ReadDocument()
}

// WriteFile encodes doc as a standalone NBT file compressed with kind.
func WriteFile(doc *Document, kind compress.Kind) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteDocument(doc); err != nil {
		return nil, err
	}
	return compress.Compress(buf.Bytes(), kind)
}
