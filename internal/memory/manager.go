package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bracer/internal/device"
)

// Manager allocates host and device buffers and mediates copies between
// them. Host pinned memory comes from an Arrow allocator; the simulated
// device global space uses the same allocator tagged separately. A non-zero
// quota makes allocation failures observable: the enqueued allocation op
// fails and surfaces at Synchronize like any other device error.
type Manager struct {
	alloc memory.Allocator

	quota int64 // bytes, 0 = unlimited
	used  atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithAllocator overrides the backing Arrow allocator (tests use
// memory.NewCheckedAllocator to prove release discipline).
func WithAllocator(a memory.Allocator) Option {
	return func(m *Manager) { m.alloc = a }
}

// WithQuota caps total live bytes across both spaces.
func WithQuota(bytes int64) Option {
	return func(m *Manager) { m.quota = bytes }
}

// NewManager builds a Manager with the default Go allocator.
func NewManager(opts ...Option) *Manager {
	m := &Manager{alloc: memory.NewGoAllocator()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AllocateHost enqueues a host pinned allocation on stream and returns the
// handle immediately. The backing store is valid only once the stream
// reaches this point in its order.
func (m *Manager) AllocateHost(stream *device.Stream, dt DType, count int) (*HostBuffer, error) {
	b, err := m.allocate(stream, HostPinned, dt, count)
	if err != nil {
		return nil, err
	}
	return &HostBuffer{buffer: b}, nil
}

// AllocateDevice enqueues a device global allocation on stream and returns
// the handle immediately.
func (m *Manager) AllocateDevice(stream *device.Stream, dt DType, count int) (*DeviceBuffer, error) {
	b, err := m.allocate(stream, DeviceGlobal, dt, count)
	if err != nil {
		return nil, err
	}
	return &DeviceBuffer{buffer: b}, nil
}

func (m *Manager) allocate(stream *device.Stream, space MemSpace, dt DType, count int) (*buffer, error) {
	if count <= 0 {
		return nil, fmt.Errorf("memory: invalid element count %d", count)
	}
	if dt.Size() == 0 {
		return nil, fmt.Errorf("memory: unsupported dtype %v", dt)
	}

	b := &buffer{
		mgr:    m,
		stream: stream,
		space:  space,
		dtype:  dt,
		length: count,
	}
	b.refs.Store(1)
	b.beginOp()

	size := int64(b.ByteSize())
	op := device.NewOperation(device.OpAlloc, fmt.Sprintf("%s %s[%d]", space, dt, count), func() error {
		if m.quota > 0 && m.used.Add(size) > m.quota {
			m.used.Add(-size)
			return fmt.Errorf("%w: %d bytes requested, quota %d", ErrOutOfMemory, size, m.quota)
		}
		if m.quota == 0 {
			m.used.Add(size)
		}
		b.data = m.alloc.Allocate(int(size))
		allocatedBytes.WithLabelValues(space.String()).Add(float64(size))
		buffersLive.Inc()
		return nil
	}).OnComplete(b.endOp)

	if err := stream.Enqueue(op); err != nil {
		b.endOp(err)
		return nil, err
	}
	return b, nil
}

// free physically releases the backing store. Called only once, by the
// refcount/outstanding-op gate.
func (m *Manager) free(b *buffer) {
	if b.data == nil {
		// Allocation never ran (cancelled batch); nothing to return.
		return
	}
	size := int64(len(b.data))
	m.alloc.Free(b.data)
	b.data = nil
	m.used.Add(-size)
	allocatedBytes.WithLabelValues(b.space.String()).Sub(float64(size))
	buffersLive.Dec()

	log.Trace().
		Str("space", b.space.String()).
		Int64("bytes", size).
		Msg("Buffer released")
}

// copyEndpoint narrows the accepted Copy endpoints to the two buffer
// handles. Raw device pointers are rejected: device memory is addressed
// indirectly via kernel arguments only.
func copyEndpoint(v any, role string) (*buffer, error) {
	switch ep := v.(type) {
	case *HostBuffer:
		return ep.buffer, nil
	case *DeviceBuffer:
		return ep.buffer, nil
	case DevicePointer, *DevicePointer:
		return nil, &CrossSpaceViolation{Endpoint: role}
	default:
		return nil, fmt.Errorf("memory: unsupported copy %s type %T", role, v)
	}
}

// Copy enqueues a byte-exact transfer from src to dst. Endpoints are buffer
// handles in any host/device pairing; sizes must match exactly. The
// validation is synchronous; the transfer is not.
func (m *Manager) Copy(stream *device.Stream, src, dst any) error {
	sb, err := copyEndpoint(src, "src")
	if err != nil {
		return err
	}
	db, err := copyEndpoint(dst, "dst")
	if err != nil {
		return err
	}
	if sb.ByteSize() != db.ByteSize() {
		return &SizeMismatchError{Src: sb.ByteSize(), Dst: db.ByteSize()}
	}

	sb.beginOp()
	db.beginOp()
	op := device.NewOperation(device.OpCopy, fmt.Sprintf("%s->%s", sb.space, db.space), func() error {
		if sb.data == nil || db.data == nil {
			return fmt.Errorf("memory: copy touches unallocated buffer")
		}
		copy(db.data, sb.data)
		return nil
	}).OnComplete(sb.endOp).OnComplete(db.endOp)

	if err := stream.Enqueue(op); err != nil {
		sb.endOp(err)
		db.endOp(err)
		return err
	}
	return nil
}

// Memset enqueues a fill of every backing byte with v.
func (m *Manager) Memset(stream *device.Stream, dst any, v byte) error {
	db, err := copyEndpoint(dst, "dst")
	if err != nil {
		return err
	}

	db.beginOp()
	op := device.NewOperation(device.OpMemset, fmt.Sprintf("memset %s", db.space), func() error {
		if db.data == nil {
			return fmt.Errorf("memory: memset touches unallocated buffer")
		}
		for i := range db.data {
			db.data[i] = v
		}
		return nil
	}).OnComplete(db.endOp)

	if err := stream.Enqueue(op); err != nil {
		db.endOp(err)
		return err
	}
	return nil
}

// Used returns the currently tracked live byte count.
func (m *Manager) Used() int64 { return m.used.Load() }
