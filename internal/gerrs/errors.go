// Package gerrs collects the error taxonomy shared across GitMC-Core's
// codec and engine layers, so callers can errors.Is/errors.As against a
// single stable set regardless of which package raised the failure.
package gerrs

import "errors"

var (
	// ErrMalformedFilename means a region or .mcc filename did not match
	// the expected r.<x>.<z>.mca[c] pattern.
	ErrMalformedFilename = errors.New("gitmc: malformed region filename")

	// ErrTruncatedHeader means a region file ended before its 8KiB header
	// could be fully read.
	ErrTruncatedHeader = errors.New("gitmc: truncated region header")

	// ErrTruncatedChunk means a chunk payload ended before its declared
	// length.
	ErrTruncatedChunk = errors.New("gitmc: truncated chunk payload")

	// ErrUnsupportedCompression means the compression id is unknown, or
	// known but has no registered backend (LZ4/custom by default).
	ErrUnsupportedCompression = errors.New("gitmc: unsupported compression")

	// ErrCorruptCompressed means a compressed stream failed to decode.
	ErrCorruptCompressed = errors.New("gitmc: corrupt compressed stream")

	// ErrMissingExternalChunk means a chunk's external-storage bit was
	// set but its sibling .mcc file is absent.
	ErrMissingExternalChunk = errors.New("gitmc: missing external chunk file")

	// ErrWrongRegion means a chunk was added to a writer for a different
	// region than the chunk's coordinate maps to.
	ErrWrongRegion = errors.New("gitmc: chunk does not belong to this region")

	// ErrOversizedChunk means a chunk's compressed payload exceeds the
	// in-file limit and external spill is disabled.
	ErrOversizedChunk = errors.New("gitmc: chunk exceeds in-file size limit")

	// ErrMalformedNbt means a binary NBT stream violated the tag
	// grammar.
	ErrMalformedNbt = errors.New("gitmc: malformed NBT stream")

	// ErrMalformedSnbt means the SNBT parser could not consume the
	// input.
	ErrMalformedSnbt = errors.New("gitmc: malformed SNBT input")

	// ErrManifestCorrupt means the manifest JSON file could not be read
	// back.
	ErrManifestCorrupt = errors.New("gitmc: manifest file corrupt")

	// ErrStampCorrupt means a stamp JSON file could not be read back.
	ErrStampCorrupt = errors.New("gitmc: stamp file corrupt")

	// ErrBusy means another operation already holds the save's exclusive
	// lock.
	ErrBusy = errors.New("gitmc: save is busy with another operation")

	// ErrCanceled means the caller's cancellation token fired.
	ErrCanceled = errors.New("gitmc: operation canceled")
)
