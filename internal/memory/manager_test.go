package memory

import (
	"testing"

	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bracer/internal/device"
	"github.com/23skdu/longbow-bracer/internal/layout"
)

func newStream(t *testing.T) *device.Stream {
	t.Helper()
	s := device.NewStream(device.Device{Ordinal: 0, API: device.CUDA})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAllocateHostDeferredValidity(t *testing.T) {
	s := newStream(t)
	m := NewManager()

	h, err := m.AllocateHost(s, Float32, 16)
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, Float32, h.DType())
	assert.Equal(t, 16, h.Len())
	assert.Equal(t, 64, h.ByteSize())
	assert.Equal(t, HostPinned, h.Space())

	require.NoError(t, s.Synchronize())
	require.True(t, h.Allocated())
	data := h.Float32s()
	require.Len(t, data, 16)

	data[3] = 1.5
	assert.Equal(t, float32(1.5), h.Float32s()[3])
}

func TestCopyHostDeviceRoundTrip(t *testing.T) {
	s := newStream(t)
	m := NewManager()

	h, err := m.AllocateHost(s, Float32, 8)
	require.NoError(t, err)
	defer h.Release()
	d, err := m.AllocateDevice(s, Float32, 8)
	require.NoError(t, err)
	defer d.Release()
	h2, err := m.AllocateHost(s, Float32, 8)
	require.NoError(t, err)
	defer h2.Release()

	require.NoError(t, s.Synchronize())
	for i := range h.Float32s() {
		h.Float32s()[i] = float32(i) * 0.5
	}

	require.NoError(t, m.Copy(s, h, d))
	require.NoError(t, m.Copy(s, d, h2))
	require.NoError(t, s.Synchronize())

	assert.Equal(t, h.Float32s(), h2.Float32s())
}

// Dropping a buffer's handle while enqueued operations still reference it
// must not release the memory early: the outstanding-operation counter
// keeps it alive until the stream reports completion.
func TestReleaseGatedOnOutstandingOps(t *testing.T) {
	s := newStream(t)
	alloc := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	m := NewManager(WithAllocator(alloc))

	a, err := m.AllocateHost(s, Uint8, 32)
	require.NoError(t, err)
	b, err := m.AllocateHost(s, Uint8, 32)
	require.NoError(t, err)

	require.NoError(t, m.Memset(s, a, 0x42))
	require.NoError(t, m.Copy(s, a, b))

	// Handle dropped before synchronize; the copy still reads valid data.
	a.Release()

	require.NoError(t, s.Synchronize())
	for i, v := range b.Bytes() {
		require.Equal(t, byte(0x42), v, "byte %d", i)
	}

	b.Release()
	alloc.AssertSize(t, 0)
}

// A rejected enqueue must retire the operation pins it took, or the
// buffers stay unfreeable forever.
func TestFailedEnqueueUnpinsBuffers(t *testing.T) {
	s := device.NewStream(device.Device{Ordinal: 0, API: device.CUDA})
	alloc := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	m := NewManager(WithAllocator(alloc))

	a, err := m.AllocateHost(s, Uint8, 32)
	require.NoError(t, err)
	b, err := m.AllocateHost(s, Uint8, 32)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = m.Copy(s, a, b)
	require.ErrorIs(t, err, device.ErrStreamClosed)
	err = m.Memset(s, b, 0x1)
	require.ErrorIs(t, err, device.ErrStreamClosed)

	a.Release()
	b.Release()
	alloc.AssertSize(t, 0)
}

func TestCrossSpaceViolation(t *testing.T) {
	s := newStream(t)
	m := NewManager()

	d, err := m.AllocateDevice(s, Float32, 4)
	require.NoError(t, err)
	defer d.Release()
	h, err := m.AllocateHost(s, Float32, 4)
	require.NoError(t, err)
	defer h.Release()

	var csv *CrossSpaceViolation
	err = m.Copy(s, d.Pointer(), h)
	require.ErrorAs(t, err, &csv)
	assert.Equal(t, "src", csv.Endpoint)

	err = m.Copy(s, h, d.Pointer())
	require.ErrorAs(t, err, &csv)
	assert.Equal(t, "dst", csv.Endpoint)

	// The violation is synchronous: nothing was queued, so the stream
	// drains clean.
	require.NoError(t, s.Synchronize())
}

func TestCopySizeMismatch(t *testing.T) {
	s := newStream(t)
	m := NewManager()

	a, err := m.AllocateHost(s, Float32, 4)
	require.NoError(t, err)
	defer a.Release()
	b, err := m.AllocateHost(s, Float32, 8)
	require.NoError(t, err)
	defer b.Release()

	var sm *SizeMismatchError
	err = m.Copy(s, a, b)
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, 16, sm.Src)
	assert.Equal(t, 32, sm.Dst)
	require.NoError(t, s.Synchronize())
}

// Allocation failures are asynchronous: the handle comes back, the error
// surfaces at Synchronize as a device operation error.
func TestQuotaExhaustionSurfacesAtSynchronize(t *testing.T) {
	s := newStream(t)
	m := NewManager(WithQuota(64))

	small, err := m.AllocateHost(s, Uint8, 32)
	require.NoError(t, err)
	defer small.Release()

	big, err := m.AllocateHost(s, Uint8, 128)
	require.NoError(t, err, "enqueue itself must not fail")
	defer big.Release()

	err = s.Synchronize()
	var oe *device.OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, device.OpAlloc, oe.Kind)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	assert.True(t, small.Allocated())
	assert.False(t, big.Allocated())
}

func TestViewIndexAndLoadStore(t *testing.T) {
	s := newStream(t)
	m := NewManager()

	h, err := m.AllocateHost(s, Float32, 16)
	require.NoError(t, err)
	defer h.Release()
	require.NoError(t, s.Synchronize())

	v := ViewOf(h, layout.RowMajor(4, 4), 0, Global, true)
	require.NoError(t, v.Store(7.5, 2, 3))
	got, err := v.Load(2, 3)
	require.NoError(t, err)
	assert.Equal(t, float32(7.5), got)
	assert.Equal(t, float32(7.5), h.Float32s()[2*4+3])

	// Tiled sub-view addresses the same storage.
	tiled, err := v.Layout.Tile([]int{2, 2}, []int{1, 1})
	require.NoError(t, err)
	tv := ViewOf(h, tiled, 0, Global, false)
	require.NoError(t, tv.Store(3.25, 0, 1))
	assert.Equal(t, float32(3.25), h.Float32s()[2*4+3])
}

// A view's implied extent is not validated against the buffer capacity.
// This is the documented sharp edge of the layout model: the offset math is
// unchecked and capacity is the caller's responsibility.
func TestViewCapacityIsNotChecked(t *testing.T) {
	s := newStream(t)
	m := NewManager()

	h, err := m.AllocateHost(s, Float32, 4)
	require.NoError(t, err)
	defer h.Release()
	require.NoError(t, s.Synchronize())

	v := ViewOf(h, layout.RowMajor(8, 8), 0, Global, true)
	idx, err := v.Index(7, 7)
	require.NoError(t, err)
	assert.Equal(t, 63, idx, "index resolves even though the buffer holds 4 elements")
}

func TestFloat16RoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 0.5, 65504, -65504, 3.140625} {
		got := F16ToF32(F32ToF16(f))
		assert.Equal(t, f, got, "f=%v", f)
	}

	// Overflow clamps to max normal instead of Inf.
	assert.Equal(t, float32(65504), F16ToF32(F32ToF16(1e9)))
	assert.Equal(t, float32(-65504), F16ToF32(F32ToF16(-1e9)))
	// Subnormals flush to zero.
	assert.Equal(t, float32(0), F16ToF32(F32ToF16(1e-8)))
}
