package memory

import (
	"sync/atomic"
	"unsafe"

	"github.com/23skdu/longbow-bracer/internal/device"
)

// MemSpace tags where a buffer's backing store lives.
type MemSpace int

const (
	HostPinned MemSpace = iota
	DeviceGlobal
)

func (s MemSpace) String() string {
	if s == HostPinned {
		return "host"
	}
	return "device"
}

// buffer is the shared record behind HostBuffer and DeviceBuffer. Element
// type and length are fixed at creation. Physical release is gated on
// refcount == 0 AND outstanding-ops == 0; the outstanding-op counter is
// incremented when an operation referencing the buffer is enqueued and
// decremented when the stream reports completion, and tolerates concurrent
// updates from multiple stream threads.
type buffer struct {
	mgr    *Manager
	stream *device.Stream
	space  MemSpace
	dtype  DType
	length int

	data []byte // assigned by the allocation op, freed by the manager

	refs     atomic.Int64
	inflight atomic.Int64
	freed    atomic.Bool
}

func (b *buffer) DType() DType           { return b.dtype }
func (b *buffer) Len() int               { return b.length }
func (b *buffer) ByteSize() int          { return b.length * b.dtype.Size() }
func (b *buffer) Space() MemSpace        { return b.space }
func (b *buffer) Stream() *device.Stream { return b.stream }

// Allocated reports whether the enqueued allocation has completed. Reads and
// writes before that point are undefined unless the owning stream has been
// synchronized.
func (b *buffer) Allocated() bool { return b.data != nil }

// Retain adds a reference so the handle can be shared.
func (b *buffer) Retain() { b.refs.Add(1) }

// Release drops a reference. The backing store is freed once no references
// remain and no enqueued-but-incomplete operation still touches the buffer.
func (b *buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.maybeFree()
	}
}

// beginOp marks the buffer as referenced by a newly enqueued operation.
func (b *buffer) beginOp() { b.inflight.Add(1) }

// endOp is the stream completion hook counterpart of beginOp.
func (b *buffer) endOp(error) {
	if b.inflight.Add(-1) == 0 {
		b.maybeFree()
	}
}

func (b *buffer) maybeFree() {
	if b.refs.Load() != 0 || b.inflight.Load() != 0 {
		return
	}
	if b.freed.CompareAndSwap(false, true) {
		b.mgr.free(b)
	}
}

func (b *buffer) float32s() []float32 {
	if b.data == nil {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), b.length)
}

func (b *buffer) int32s() []int32 {
	if b.data == nil {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.data[0])), b.length)
}

func (b *buffer) uint16s() []uint16 {
	if b.data == nil {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b.data[0])), b.length)
}

// HostBuffer is a fixed-size, element-typed block of host pinned memory.
type HostBuffer struct {
	*buffer
}

// Float32s returns the typed backing slice. Valid only once the allocation
// operation has completed (after Synchronize or a later serialized op);
// returns nil before that.
func (h *HostBuffer) Float32s() []float32 { return h.float32s() }

// Int32s returns the typed backing slice, with the same validity rule as
// Float32s.
func (h *HostBuffer) Int32s() []int32 { return h.int32s() }

// Uint16s exposes raw binary16 storage for Float16 buffers; convert with
// F16ToF32/F32ToF16.
func (h *HostBuffer) Uint16s() []uint16 { return h.uint16s() }

// Bytes returns the raw backing store.
func (h *HostBuffer) Bytes() []byte { return h.data }

// DeviceBuffer is a fixed-size, element-typed block of device global
// memory. It has no host-side accessors: contents move through Copy or are
// addressed by kernels via Pointer and views.
type DeviceBuffer struct {
	*buffer
}

// Pointer returns the kernel-argument form of the buffer. A DevicePointer
// is only meaningful inside kernel code; using one as a copy endpoint is a
// CrossSpaceViolation.
func (d *DeviceBuffer) Pointer() DevicePointer {
	return DevicePointer{buf: d.buffer}
}

// DevicePointer is an address in device global memory, bindable as a kernel
// argument.
type DevicePointer struct {
	buf        *buffer
	offsetElem int
}

// Offset returns a pointer advanced by n elements.
func (p DevicePointer) Offset(n int) DevicePointer {
	return DevicePointer{buf: p.buf, offsetElem: p.offsetElem + n}
}

// BeginOp marks the underlying buffer as referenced by a newly enqueued
// stream operation. The returned hook must be registered as that
// operation's completion callback so the outstanding-op count retires.
func (p DevicePointer) BeginOp() func(error) {
	p.buf.beginOp()
	return p.buf.endOp
}

// Float32s is the kernel-side view of the pointed-at memory. Only valid
// from kernel code executing on the owning stream; host code must never
// dereference it.
func (p DevicePointer) Float32s() []float32 {
	s := p.buf.float32s()
	if s == nil {
		return nil
	}
	return s[p.offsetElem:]
}

// Uint16s is the kernel-side view of Float16 storage, with the same
// validity rule as Float32s. Convert with F16ToF32/F32ToF16.
func (p DevicePointer) Uint16s() []uint16 {
	s := p.buf.uint16s()
	if s == nil {
		return nil
	}
	return s[p.offsetElem:]
}
