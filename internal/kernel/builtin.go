package kernel

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/23skdu/longbow-bracer/internal/device"
	"github.com/23skdu/longbow-bracer/internal/memory"
)

// Built-in kernel sources. These are the stock data-movement and BLAS
// kernels the demo binary and tests launch; user kernels follow the same
// Source shape.

// FillF32 writes a constant into every element.
// Params: dst buffer, value, element count.
var FillF32 = &Source{
	Name:   "fill_f32",
	Params: []ArgKind{BufferArg, ScalarArg, ScalarArg},
	Body: func(tid device.ThreadID, args Args) {
		i := tid.Global()
		n := int(args.Scalar(2))
		if i < n {
			args.Ptr(0).Float32s()[i] = float32(args.Scalar(1))
		}
	},
}

// AddScalarF32 adds a constant to every element in place.
// Params: dst buffer, addend, element count.
var AddScalarF32 = &Source{
	Name:   "add_scalar_f32",
	Params: []ArgKind{BufferArg, ScalarArg, ScalarArg},
	Body: func(tid device.ThreadID, args Args) {
		i := tid.Global()
		n := int(args.Scalar(2))
		if i < n {
			args.Ptr(0).Float32s()[i] += float32(args.Scalar(1))
		}
	},
}

// CastF32ToF16 narrows float32 elements to binary16 storage. Out-of-range
// values clamp to the fp16 max normal; subnormals flush to zero.
// Params: src buffer (Float32), dst buffer (Float16), element count.
var CastF32ToF16 = &Source{
	Name:   "cast_f32_f16",
	Params: []ArgKind{BufferArg, BufferArg, ScalarArg},
	Body: func(tid device.ThreadID, args Args) {
		i := tid.Global()
		n := int(args.Scalar(2))
		if i < n {
			args.Ptr(1).Uint16s()[i] = memory.F32ToF16(args.Ptr(0).Float32s()[i])
		}
	},
}

// CastF16ToF32 widens binary16 storage back to float32.
// Params: src buffer (Float16), dst buffer (Float32), element count.
var CastF16ToF32 = &Source{
	Name:   "cast_f16_f32",
	Params: []ArgKind{BufferArg, BufferArg, ScalarArg},
	Body: func(tid device.ThreadID, args Args) {
		i := tid.Global()
		n := int(args.Scalar(2))
		if i < n {
			args.Ptr(1).Float32s()[i] = memory.F16ToF32(args.Ptr(0).Uint16s()[i])
		}
	},
}

// AxpyF32 computes y += alpha*x. Thread 0 of each block applies BLAS saxpy
// to the block's contiguous span; the remaining threads of the block are
// idle lanes.
// Params: alpha, x buffer, y buffer, element count.
var AxpyF32 = &Source{
	Name:   "axpy_f32",
	Params: []ArgKind{ScalarArg, BufferArg, BufferArg, ScalarArg},
	Body: func(tid device.ThreadID, args Args) {
		if tid.ThreadIdx.X != 0 || tid.ThreadIdx.Y != 0 || tid.ThreadIdx.Z != 0 {
			return
		}
		n := int(args.Scalar(3))
		span := tid.BlockDim.Size()
		start := tid.BlockIdx.X * span
		if start >= n {
			return
		}
		end := start + span
		if end > n {
			end = n
		}
		alpha := float32(args.Scalar(0))
		x := args.Ptr(1).Float32s()[start:end]
		y := args.Ptr(2).Float32s()[start:end]
		blas32.Axpy(alpha,
			blas32.Vector{N: end - start, Inc: 1, Data: x},
			blas32.Vector{N: end - start, Inc: 1, Data: y})
	},
}

// GemmF32 computes C = A*B for row-major views. A single lane drives BLAS
// sgemm over the whole problem; the launch exists for stream ordering, not
// for host-side parallelism.
// Params: A view, B view, C view.
var GemmF32 = &Source{
	Name:   "gemm_f32",
	Params: []ArgKind{ViewArg, ViewArg, ViewArg},
	Body: func(tid device.ThreadID, args Args) {
		if tid.Global() != 0 || tid.GlobalY() != 0 || tid.GlobalZ() != 0 {
			return
		}
		a, b, c := args.View(0), args.View(1), args.View(2)
		as, bs := a.Layout.Shape(), b.Layout.Shape()
		m, k, n := as[0], as[1], bs[1]

		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas32.General{Rows: m, Cols: k, Stride: a.Layout.Stride()[0], Data: a.Float32s()},
			blas32.General{Rows: k, Cols: n, Stride: b.Layout.Stride()[0], Data: b.Float32s()},
			0,
			blas32.General{Rows: m, Cols: n, Stride: c.Layout.Stride()[0], Data: c.Float32s()})
	},
}
