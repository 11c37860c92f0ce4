// Package memory allocates and tracks host- and device-resident buffers and
// mediates copies between them. Allocation, copy, and memset are all
// enqueued stream operations: handles come back immediately, backing store
// becomes valid once the owning stream reaches the allocation in order.
package memory

// DType is the element type of a buffer.
type DType int

const (
	Float32 DType = iota
	Float64
	Float16
	Int32
	Uint8
)

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Float16:
		return 2
	case Uint8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}
