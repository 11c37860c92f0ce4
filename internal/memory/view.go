package memory

import (
	"github.com/23skdu/longbow-bracer/internal/layout"
)

// AddrSpace tags the address space a view addresses through.
type AddrSpace int

const (
	Global AddrSpace = iota
	Shared
	Local
)

func (s AddrSpace) String() string {
	switch s {
	case Global:
		return "global"
	case Shared:
		return "shared"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

// View pairs a Layout with an offset into a buffer, an address-space tag,
// and an exclusivity flag. The element extent implied by the layout is NOT
// checked against the buffer's capacity from the offset; that is the
// caller's responsibility.
type View struct {
	Layout    layout.Layout
	Space     AddrSpace
	Exclusive bool

	buf  *buffer
	base int // element offset into the buffer
}

// ViewOf builds a view over a host or device buffer handle starting at
// element offset base.
func ViewOf(b Handle, l layout.Layout, base int, space AddrSpace, exclusive bool) View {
	return View{Layout: l, Space: space, Exclusive: exclusive, buf: b.raw(), base: base}
}

// Handle is the closed set of buffer handle types a view can reference.
type Handle interface {
	DType() DType
	Len() int
	raw() *buffer
}

func (h *HostBuffer) raw() *buffer   { return h.buffer }
func (d *DeviceBuffer) raw() *buffer { return d.buffer }

// DType returns the element type of the underlying buffer.
func (v View) DType() DType { return v.buf.dtype }

// Index resolves coords to an element index into the underlying buffer.
func (v View) Index(coords ...int) (int, error) {
	off, err := v.Layout.Offset(coords...)
	if err != nil {
		return 0, err
	}
	return v.base + off, nil
}

// BeginOp marks the underlying buffer as referenced by a newly enqueued
// stream operation; register the returned hook as the op's completion.
func (v View) BeginOp() func(error) {
	v.buf.beginOp()
	return v.buf.endOp
}

// Float32s returns the typed slice starting at the view's offset. For host
// buffers it is valid once the allocation completed. For device buffers it
// is only meaningful inside kernel code running on the owning stream; host
// dereference is undefined.
func (v View) Float32s() []float32 {
	s := v.buf.float32s()
	if s == nil {
		return nil
	}
	return s[v.base:]
}

// Load reads the element at coords through the layout. No bounds check.
func (v View) Load(coords ...int) (float32, error) {
	idx, err := v.Index(coords...)
	if err != nil {
		return 0, err
	}
	return v.buf.float32s()[idx], nil
}

// Store writes the element at coords through the layout. No bounds check.
func (v View) Store(val float32, coords ...int) error {
	idx, err := v.Index(coords...)
	if err != nil {
		return err
	}
	v.buf.float32s()[idx] = val
	return nil
}
