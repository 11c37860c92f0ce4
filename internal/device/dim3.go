package device

// Dim3 is a grid or block extent. Missing y/z components default to 1 via
// the constructors.
type Dim3 struct {
	X, Y, Z int
}

// D1 builds a 1-D extent.
func D1(x int) Dim3 { return Dim3{X: x, Y: 1, Z: 1} }

// D2 builds a 2-D extent.
func D2(x, y int) Dim3 { return Dim3{X: x, Y: y, Z: 1} }

// D3 builds a 3-D extent.
func D3(x, y, z int) Dim3 { return Dim3{X: x, Y: y, Z: z} }

// Size returns the total number of positions in the extent.
func (d Dim3) Size() int { return d.X * d.Y * d.Z }

// norm fills zero y/z components with 1 so callers may leave them unset.
// A zero X is a zero-sized extent, not a default.
func (d Dim3) norm() Dim3 {
	if d.Y == 0 {
		d.Y = 1
	}
	if d.Z == 0 {
		d.Z = 1
	}
	return d
}

// ThreadID locates one execution unit within the launch hierarchy.
type ThreadID struct {
	BlockIdx  Dim3
	ThreadIdx Dim3
	BlockDim  Dim3
	GridDim   Dim3
}

// Global returns the flat global index along X.
func (t ThreadID) Global() int {
	return t.BlockIdx.X*t.BlockDim.X + t.ThreadIdx.X
}

// GlobalY returns the flat global index along Y.
func (t ThreadID) GlobalY() int {
	return t.BlockIdx.Y*t.BlockDim.Y + t.ThreadIdx.Y
}

// GlobalZ returns the flat global index along Z.
func (t ThreadID) GlobalZ() int {
	return t.BlockIdx.Z*t.BlockDim.Z + t.ThreadIdx.Z
}

// linearTo3D converts a flat index into coordinates within dim.
func linearTo3D(linear int, dim Dim3) Dim3 {
	return Dim3{
		X: linear % dim.X,
		Y: (linear / dim.X) % dim.Y,
		Z: linear / (dim.X * dim.Y),
	}
}
