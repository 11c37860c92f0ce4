// Package kernel compiles kernel descriptions into device-executable form,
// binds and validates launch arguments, and submits launch requests to
// device streams.
package kernel

import (
	"fmt"

	"github.com/23skdu/longbow-bracer/internal/device"
	"github.com/23skdu/longbow-bracer/internal/memory"
)

// ArgKind is the capability class of a kernel parameter. The set is closed:
// scalars, raw device buffers, and layout-described tensor views.
type ArgKind int

const (
	ScalarArg ArgKind = iota
	BufferArg
	ViewArg
)

func (k ArgKind) String() string {
	switch k {
	case ScalarArg:
		return "scalar"
	case BufferArg:
		return "buffer"
	case ViewArg:
		return "view"
	default:
		return "unknown"
	}
}

// Arg is a bound kernel argument.
type Arg interface {
	Kind() ArgKind
}

// Scalar is an immediate numeric argument.
type Scalar float64

func (Scalar) Kind() ArgKind { return ScalarArg }

// Ptr binds device global memory by raw pointer.
type Ptr struct {
	memory.DevicePointer
}

func (Ptr) Kind() ArgKind { return BufferArg }

// Tensor binds a layout-described view.
type Tensor struct {
	memory.View
}

func (Tensor) Kind() ArgKind { return ViewArg }

// Args is the ordered argument list of one launch. The typed accessors
// assert the declared kind; a mismatch that slipped past an unchecked
// launch panics inside the kernel body and surfaces as an opaque device
// fault at Synchronize.
type Args []Arg

// Scalar returns argument i as an immediate value.
func (a Args) Scalar(i int) float64 { return float64(a[i].(Scalar)) }

// Ptr returns argument i as a device pointer.
func (a Args) Ptr(i int) memory.DevicePointer { return a[i].(Ptr).DevicePointer }

// View returns argument i as a tensor view.
func (a Args) View(i int) memory.View { return a[i].(Tensor).View }

// Body is host-simulated device code, executed once per launched thread.
type Body func(tid device.ThreadID, args Args)

// Source is an opaque compilable kernel unit: a name, a declared parameter
// signature, and a body. The coordinator never looks inside the body.
type Source struct {
	Name   string
	Params []ArgKind
	Body   Body
}

// Compiled is the device-executable form of a Source for one device API and
// specialization. Reusable across many launches; each launch binds a fresh
// argument list.
type Compiled struct {
	src *Source
	api device.API
	key string
}

// Name returns the source kernel name.
func (c *Compiled) Name() string { return c.src.Name }

// Key returns the specialization cache key.
func (c *Compiled) Key() string { return c.key }

// LaunchRequest is the immutable record of one launch: compiled kernel,
// ordered arguments, grid and block dimensions. Constructed once per launch
// and consumed by the stream enqueue.
type LaunchRequest struct {
	Kernel *Compiled
	Args   Args
	Grid   device.Dim3
	Block  device.Dim3
}

// ArgumentMismatchError reports a launch argument that does not satisfy the
// kernel's declared signature. Raised synchronously by the checked launch
// path; nothing is queued.
type ArgumentMismatchError struct {
	Kernel   string
	Position int
	Want     string
	Got      string
}

func (e *ArgumentMismatchError) Error() string {
	return fmt.Sprintf("kernel %s: argument %d: want %s, got %s", e.Kernel, e.Position, e.Want, e.Got)
}
