// Package region implements Minecraft's region (.mca) container format: a
// sector-aligned grid of up to 1024 chunks per file, each independently
// compressed, with an external (.mcc) side channel for oversized chunks.
package region

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/naughtychas/gitmc-core/internal/compress"
	"github.com/naughtychas/gitmc-core/internal/coord"
	"github.com/naughtychas/gitmc-core/internal/gerrs"
	"github.com/naughtychas/gitmc-core/internal/nbt"
)

const (
	sectorSize      = 4096
	headerSize      = 2 * sectorSize // location table + timestamp table
	chunksPerRegion = 1024
	firstDataSector = 2 // sectors 0-1 hold the two header tables

	// maxInFileChunkSize is the largest compressed chunk payload (including
	// its 5-byte length+compression prefix) that may live inside the .mca
	// file itself; anything larger spills to the .mcc side channel.
	maxInFileChunkSize = 1020 * 1024
)

var filenamePattern = regexp.MustCompile(`^r\.(-?\d+)\.(-?\d+)\.mca$`)

// ParseFilename extracts a region's coordinate from a "r.<x>.<z>.mca"
// basename.
func ParseFilename(name string) (coord.Point2, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return coord.Point2{}, fmt.Errorf("%w: %q", gerrs.ErrMalformedFilename, name)
	}
	x, err1 := strconv.ParseInt(m[1], 10, 32)
	z, err2 := strconv.ParseInt(m[2], 10, 32)
	if err1 != nil || err2 != nil {
		return coord.Point2{}, fmt.Errorf("%w: %q", gerrs.ErrMalformedFilename, name)
	}
	return coord.Point2{X: int32(x), Z: int32(z)}, nil
}

// externalPath returns the sibling .mcc path for a given .mca path.
func externalPath(mcaPath string) string {
	return mcaPath[:len(mcaPath)-len(filepath.Ext(mcaPath))] + ".mcc"
}

// ChunkRecord is one decoded chunk slot: its coordinate, Anvil timestamp,
// the compression scheme its payload was stored under, whether it spilled
// to the external .mcc file, and its decoded NBT root.
type ChunkRecord struct {
	Coord       coord.Point2
	Timestamp   uint32
	Compression compress.Kind
	External    bool
	NBT         nbt.Compound
}

// ValidationResult accumulates the warnings and errors found while
// walking a region's chunks; warnings do not abort the walk.
type ValidationResult struct {
	Warnings []string
	Errors   []error
}

// OK reports whether no fatal errors were recorded.
func (v ValidationResult) OK() bool { return len(v.Errors) == 0 }

// Reader parses an already-loaded region file's header and serves
// individual chunks on demand, reading from the backing file lazily.
type Reader struct {
	region     coord.Point2
	file       *os.File
	mcaPath    string
	locations  [chunksPerRegion]uint32
	timestamps [chunksPerRegion]uint32
}

// Open loads a region file's header (locations + timestamps). The
// region coordinate is parsed from the filename unless it is overridden
// by a caller that already knows it (e.g. when the file was recovered
// under a renamed path).
func Open(path string) (*Reader, error) {
	region, parseErr := ParseFilename(filepath.Base(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{region: region, file: f, mcaPath: path}
	if err := r.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if parseErr != nil {
		// Caller can still use the reader (coordinates are only needed
		// for WrongRegion checks performed by the writer), but an
		// unparsable filename is surfaced so callers relying on Region()
		// notice.
		r.region = coord.Point2{}
	}
	return r, nil
}

// OpenAt loads a region file's header, using region as its coordinate
// regardless of what the filename parses to.
func OpenAt(path string, region coord.Point2) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{region: region, file: f, mcaPath: path}
	if err := r.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) loadHeader() error {
	header := make([]byte, headerSize)
	n, err := r.file.ReadAt(header, 0)
	if err != nil && n < headerSize {
		return fmt.Errorf("%w: %v", gerrs.ErrTruncatedHeader, err)
	}
	for i := 0; i < chunksPerRegion; i++ {
		r.locations[i] = binary.BigEndian.Uint32(header[i*4 : i*4+4])
	}
	for i := 0; i < chunksPerRegion; i++ {
		off := sectorSize + i*4
		r.timestamps[i] = binary.BigEndian.Uint32(header[off : off+4])
	}
	return nil
}

// Region returns the reader's region coordinate.
func (r *Reader) Region() coord.Point2 { return r.region }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.file.Close() }

// ListChunks returns the local-in-region coordinates of every chunk
// slot whose location entry is non-zero, in ascending index order.
func (r *Reader) ListChunks() []coord.Point2 {
	var out []coord.Point2
	for i, loc := range r.locations {
		if loc != 0 {
			out = append(out, coord.FromRegionIndex(i))
		}
	}
	return out
}

// externalIndexOffset returns the byte offset within the .mcc container
// at which chunk index's external entry begins: the writer and reader
// both lay out external entries in ascending chunk-index order, so the
// offset is the sum of the (4-byte length prefix + data) sizes of every
// external entry at a lower index.
func (r *Reader) externalIndexOffset(index int) (int64, error) {
	mcc, err := os.Open(externalPath(r.mcaPath))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gerrs.ErrMissingExternalChunk, err)
	}
	defer mcc.Close()

	var offset int64
	for i := 0; i < index; i++ {
		if r.locations[i] == 0 {
			continue
		}
		if !isExternalEntry(r.locations[i], r, i) {
			continue
		}
		lenBuf := make([]byte, 4)
		if _, err := mcc.ReadAt(lenBuf, offset); err != nil {
			return 0, fmt.Errorf("%w: %v", gerrs.ErrMissingExternalChunk, err)
		}
		offset += 4 + int64(binary.BigEndian.Uint32(lenBuf))
	}
	return offset, nil
}

// isExternalEntry reports whether the stored location entry's chunk
// payload declares the external bit. It must read the in-file header
// byte since the location table alone does not carry that bit.
func isExternalEntry(location uint32, r *Reader, index int) bool {
	offset := int64((location>>8)&0xFFFFFF) * sectorSize
	header := make([]byte, 5)
	if _, err := r.file.ReadAt(header, offset); err != nil {
		return false
	}
	_, external := compress.SplitByte(header[4])
	return external
}

// GetChunk returns the decoded chunk at local, or (nil, nil) if absent.
func (r *Reader) GetChunk(local coord.Point2) (*ChunkRecord, error) {
	if local.X < 0 || local.X >= 32 || local.Z < 0 || local.Z >= 32 {
		return nil, fmt.Errorf("%w: local coord %+v out of range", gerrs.ErrMalformedNbt, local)
	}
	index := local.RegionIndex()
	location := r.locations[index]
	if location == 0 {
		return nil, nil
	}

	sectorOffset := int64((location >> 8) & 0xFFFFFF)
	sectorCount := int(location & 0xFF)
	if sectorOffset < firstDataSector {
		return nil, fmt.Errorf("%w: sector offset %d below data region", gerrs.ErrTruncatedHeader, sectorOffset)
	}

	header := make([]byte, 5)
	if _, err := r.file.ReadAt(header, sectorOffset*sectorSize); err != nil {
		return nil, fmt.Errorf("%w: %v", gerrs.ErrTruncatedChunk, err)
	}
	length := binary.BigEndian.Uint32(header[0:4])
	if length == 0 {
		return nil, fmt.Errorf("%w: zero-length chunk at index %d", gerrs.ErrTruncatedChunk, index)
	}
	kind, external := compress.SplitByte(header[4])

	var compressed []byte
	if external {
		offset, err := r.externalIndexOffset(index)
		if err != nil {
			return nil, err
		}
		mcc, err := os.Open(externalPath(r.mcaPath))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gerrs.ErrMissingExternalChunk, err)
		}
		defer mcc.Close()
		lenBuf := make([]byte, 4)
		if _, err := mcc.ReadAt(lenBuf, offset); err != nil {
			return nil, fmt.Errorf("%w: %v", gerrs.ErrMissingExternalChunk, err)
		}
		dataLen := binary.BigEndian.Uint32(lenBuf)
		compressed = make([]byte, dataLen)
		if _, err := mcc.ReadAt(compressed, offset+4); err != nil {
			return nil, fmt.Errorf("%w: %v", gerrs.ErrMissingExternalChunk, err)
		}
	} else {
		if int(length) > sectorCount*sectorSize {
			return nil, fmt.Errorf("%w: declared length %d exceeds %d allocated sectors", gerrs.ErrTruncatedChunk, length, sectorCount)
		}
		compressed = make([]byte, length-1)
		if _, err := r.file.ReadAt(compressed, sectorOffset*sectorSize+5); err != nil {
			return nil, fmt.Errorf("%w: %v", gerrs.ErrTruncatedChunk, err)
		}
	}

	raw, err := compress.Decompress(compressed, kind)
	if err != nil {
		return nil, err
	}
	doc, err := nbt.NewReader(bytes.NewReader(raw)).ReadDocument()
	if err != nil {
		return nil, err
	}

	return &ChunkRecord{
		Coord:       coord.New(r.region.X*32+local.X, r.region.Z*32+local.Z),
		Timestamp:   r.timestamps[index],
		Compression: kind,
		External:    external,
		NBT:         doc.Root,
	}, nil
}

// Validate walks every present chunk, decoding it and recording
// warnings (overlapping sector claims, empty payload) and errors
// (truncation, decompression) without stopping at the first failure.
func (r *Reader) Validate() ValidationResult {
	var result ValidationResult

	claimed := make(map[int]int) // sector -> first chunk index that claimed it
	for i, loc := range r.locations {
		if loc == 0 {
			continue
		}
		offset := int((loc >> 8) & 0xFFFFFF)
		sectors := int(loc & 0xFF)
		for s := offset; s < offset+sectors; s++ {
			if prior, ok := claimed[s]; ok {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("sector %d claimed by both chunk %d and chunk %d", s, prior, i))
				continue
			}
			claimed[s] = i
		}
	}

	for _, local := range r.ListChunks() {
		rec, err := r.GetChunk(local)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("chunk %+v: %w", local, err))
			continue
		}
		if rec != nil && len(rec.NBT) == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("chunk %+v present but NBT is empty", local))
		}
	}
	return result
}

// pendingChunk is a chunk queued for the next Write call.
type pendingChunk struct {
	local       coord.Point2
	timestamp   uint32
	compression compress.Kind
	payload     []byte // pre-compression serialized NBT bytes
}

// Writer accumulates chunks for a single region and serializes them to
// an on-disk .mca (and, if needed, sibling .mcc) file in one atomic
// operation.
type Writer struct {
	region coord.Point2
	chunks map[int]*pendingChunk

	// AllowExternalSpill controls what happens when a compressed chunk
	// payload exceeds the in-file limit: true (the default) spills it to
	// a sibling .mcc file; false fails the chunk with ErrOversizedChunk,
	// matching a writer that never implemented the external side channel.
	AllowExternalSpill bool
}

// NewWriter returns a Writer for the given region coordinate, with
// external spill enabled.
func NewWriter(region coord.Point2) *Writer {
	return &Writer{
		region:             region,
		chunks:             make(map[int]*pendingChunk),
		AllowExternalSpill: true,
	}
}

// AddChunk queues a chunk for writing. The chunk's global coordinate
// must map to this writer's region.
func (w *Writer) AddChunk(global coord.Point2, root nbt.Compound, compression compress.Kind, timestamp uint32) error {
	if global.ChunkToRegion() != w.region {
		return fmt.Errorf("%w: chunk %+v maps to region %+v, writer is for %+v", gerrs.ErrWrongRegion, global, global.ChunkToRegion(), w.region)
	}

	var buf bytes.Buffer
	if err := nbt.NewWriter(&buf).WriteDocument(&nbt.Document{Root: root}); err != nil {
		return fmt.Errorf("serializing chunk %+v: %w", global, err)
	}

	local := global.LocalInRegion()
	w.chunks[local.RegionIndex()] = &pendingChunk{
		local:       local,
		timestamp:   timestamp,
		compression: compression,
		payload:     buf.Bytes(),
	}
	return nil
}

// Write compresses and lays out every queued chunk, writing the result
// to path (and, if any chunk spilled externally, to its sibling .mcc)
// via temp-file-then-rename so a crash never leaves a half-written
// region behind.
func (w *Writer) Write(path string) error {
	indices := make([]int, 0, len(w.chunks))
	for i := range w.chunks {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var locations [chunksPerRegion]uint32
	var timestamps [chunksPerRegion]uint32
	var body bytes.Buffer
	var external bytes.Buffer
	sector := firstDataSector

	for _, index := range indices {
		pc := w.chunks[index]
		compressed, err := compress.Compress(pc.payload, pc.compression)
		if err != nil {
			return fmt.Errorf("compressing chunk %+v: %w", pc.local, err)
		}

		inFileLen := len(compressed) + 5
		if inFileLen > maxInFileChunkSize {
			if !w.AllowExternalSpill {
				return fmt.Errorf("%w: chunk %+v compresses to %d bytes", gerrs.ErrOversizedChunk, pc.local, inFileLen)
			}

			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, uint32(len(compressed)))
			external.Write(lenBuf)
			external.Write(compressed)

			header := make([]byte, sectorSize)
			binary.BigEndian.PutUint32(header[0:4], 1)
			header[4] = compress.JoinByte(pc.compression, true)
			body.Write(header)

			locations[index] = (uint32(sector) << 8) | 1
			timestamps[index] = pc.timestamp
			sector++
			continue
		}

		sectorsNeeded := (inFileLen + sectorSize - 1) / sectorSize
		chunkBuf := make([]byte, sectorsNeeded*sectorSize)
		binary.BigEndian.PutUint32(chunkBuf[0:4], uint32(len(compressed)+1))
		chunkBuf[4] = compress.JoinByte(pc.compression, false)
		copy(chunkBuf[5:], compressed)
		body.Write(chunkBuf)

		locations[index] = (uint32(sector) << 8) | uint32(sectorsNeeded)
		timestamps[index] = pc.timestamp
		sector += sectorsNeeded
	}

	header := make([]byte, headerSize)
	for i, loc := range locations {
		binary.BigEndian.PutUint32(header[i*4:i*4+4], loc)
	}
	for i, ts := range timestamps {
		off := sectorSize + i*4
		binary.BigEndian.PutUint32(header[off:off+4], ts)
	}

	if err := writeAtomic(path, append(header, body.Bytes()...)); err != nil {
		return err
	}

	mccPath := externalPath(path)
	if external.Len() > 0 {
		if err := writeAtomic(mccPath, external.Bytes()); err != nil {
			return err
		}
	} else {
		os.Remove(mccPath)
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
