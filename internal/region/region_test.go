package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/naughtychas/gitmc-core/internal/compress"
	"github.com/naughtychas/gitmc-core/internal/coord"
	"github.com/naughtychas/gitmc-core/internal/nbt"
)

func TestParseFilename(t *testing.T) {
	got, err := ParseFilename("r.1.-1.mca")
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if got != (coord.Point2{X: 1, Z: -1}) {
		t.Fatalf("got %+v, want (1,-1)", got)
	}

	if _, err := ParseFilename("not-a-region.mca"); err == nil {
		t.Fatal("expected error for malformed filename")
	}
}

func TestEmptyRegionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	w := NewWriter(coord.Point2{})
	if err := w.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != headerSize {
		t.Fatalf("size = %d, want %d", info.Size(), headerSize)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if chunks := r.ListChunks(); len(chunks) != 0 {
		t.Fatalf("ListChunks = %v, want empty", chunks)
	}
}

func TestSingleChunkRoundTrip(t *testing.T) {
	global := coord.New(32, -1)
	region := global.ChunkToRegion()
	if region != (coord.Point2{X: 1, Z: -1}) {
		t.Fatalf("region = %+v, want (1,-1)", region)
	}

	root := nbt.Compound{}
	level := nbt.Compound{}
	level.SetInt("xPos", 1)
	level.SetInt("zPos", -1)
	root.SetCompound("Level", level)

	w := NewWriter(region)
	if err := w.AddChunk(global, root, compress.Zlib, 12345); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}

	path := filepath.Join(t.TempDir(), "r.1.-1.mca")
	if err := w.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	local := global.LocalInRegion()
	if local != (coord.Point2{X: 0, Z: 31}) {
		t.Fatalf("local = %+v, want (0,31)", local)
	}
	if idx := global.RegionIndex(); idx != 1023 {
		t.Fatalf("index = %d, want 1023", idx)
	}

	rec, err := r.GetChunk(local)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if rec == nil {
		t.Fatal("expected chunk, got nil")
	}
	if !nbt.DeepEqual(rec.NBT, root) {
		t.Fatalf("NBT mismatch: got %+v, want %+v", rec.NBT, root)
	}
}

func TestOversizedChunkSpillsExternal(t *testing.T) {
	root := nbt.Compound{}
	big := make([]byte, 1_100_000)
	root.SetByteArray("filler", big)

	w := NewWriter(coord.Point2{})
	if err := w.AddChunk(coord.New(0, 0), root, compress.Raw, 1); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}

	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	if err := w.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path[:len(path)-4] + ".mcc"); err != nil {
		t.Fatalf("expected .mcc sibling file: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rec, err := r.GetChunk(coord.Point2{})
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if !rec.External {
		t.Fatal("expected External = true")
	}
	if !nbt.DeepEqual(rec.NBT, root) {
		t.Fatal("NBT mismatch after external round trip")
	}
}

func TestOversizedChunkFailsWhenSpillDisabled(t *testing.T) {
	root := nbt.Compound{}
	big := make([]byte, 1_100_000)
	root.SetByteArray("filler", big)

	w := NewWriter(coord.Point2{})
	w.AllowExternalSpill = false
	if err := w.AddChunk(coord.New(0, 0), root, compress.Raw, 1); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}

	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	if err := w.Write(path); err == nil {
		t.Fatal("expected oversized chunk error")
	}
}

func TestAddChunkWrongRegionRejected(t *testing.T) {
	w := NewWriter(coord.Point2{X: 5, Z: 5})
	err := w.AddChunk(coord.New(0, 0), nbt.Compound{}, compress.Raw, 0)
	if err == nil {
		t.Fatal("expected WrongRegion error")
	}
}
