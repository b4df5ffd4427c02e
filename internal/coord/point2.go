// Package coord implements the chunk/region coordinate arithmetic shared
// by the NBT, region, and translation layers.
package coord

// Point2 is a signed 2D integer coordinate. It is used both for chunk
// coordinates (global, in chunk units) and region coordinates (in
// 32x32-chunk units).
type Point2 struct {
	X, Z int32
}

// New returns a Point2 at (x, z).
func New(x, z int32) Point2 {
	return Point2{X: x, Z: z}
}

// ChunkToRegion converts a chunk coordinate to its containing region
// coordinate via an arithmetic shift, so negative coordinates floor
// toward negative infinity rather than truncating toward zero.
func (p Point2) ChunkToRegion() Point2 {
	return Point2{X: p.X >> 5, Z: p.Z >> 5}
}

// LocalInRegion returns the chunk's position within its region, each axis
// in [0, 32).
func (p Point2) LocalInRegion() Point2 {
	return Point2{X: p.X & 31, Z: p.Z & 31}
}

// RegionIndex returns the index of a local-in-region coordinate within
// the 1024-entry region table, in [0, 1024).
func (p Point2) RegionIndex() int {
	local := p.LocalInRegion()
	return int(local.X) + 32*int(local.Z)
}

// FromRegionIndex reconstructs a local-in-region coordinate from its
// table index. index must be in [0, 1024).
func FromRegionIndex(index int) Point2 {
	return Point2{X: int32(index % 32), Z: int32(index / 32)}
}

// Add returns the component-wise sum of p and o.
func (p Point2) Add(o Point2) Point2 {
	return Point2{X: p.X + o.X, Z: p.Z + o.Z}
}

// Scale returns p with both components multiplied by n.
func (p Point2) Scale(n int32) Point2 {
	return Point2{X: p.X * n, Z: p.Z * n}
}
