package coord

import "testing"

func TestChunkToRegionRoundTrip(t *testing.T) {
	cases := []Point2{
		{0, 0}, {31, 31}, {32, 32}, {-1, -1}, {-32, -32}, {-33, 5}, {1000, -1000},
	}

	for _, c := range cases {
		r := c.ChunkToRegion()
		local := c.LocalInRegion()

		if local.X < 0 || local.X >= 32 || local.Z < 0 || local.Z >= 32 {
			t.Fatalf("local %+v out of [0,32) for chunk %+v", local, c)
		}

		reconstructed := r.Scale(32).Add(local)
		if reconstructed != c {
			t.Fatalf("chunk %+v: region %+v + local %+v = %+v, want %+v", c, r, local, reconstructed, c)
		}
	}
}

func TestRegionIndexRoundTrip(t *testing.T) {
	for x := int32(0); x < 32; x++ {
		for z := int32(0); z < 32; z++ {
			p := Point2{X: x, Z: z}
			idx := p.RegionIndex()
			if idx < 0 || idx >= 1024 {
				t.Fatalf("index %d out of range for %+v", idx, p)
			}
			if got := FromRegionIndex(idx); got != p {
				t.Fatalf("FromRegionIndex(%d) = %+v, want %+v", idx, got, p)
			}
		}
	}
}

func TestSpecExampleSingleChunk(t *testing.T) {
	c := Point2{X: 32, Z: -1}
	r := c.ChunkToRegion()
	if r != (Point2{X: 1, Z: -1}) {
		t.Fatalf("region = %+v, want (1,-1)", r)
	}
	local := c.LocalInRegion()
	if local != (Point2{X: 0, Z: 31}) {
		t.Fatalf("local = %+v, want (0,31)", local)
	}
	if idx := c.RegionIndex(); idx != 1023 {
		t.Fatalf("index = %d, want 1023", idx)
	}
}
