package memory

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory marks an allocation that exceeds the manager's quota. It
// surfaces asynchronously, at Synchronize, because allocation itself is an
// enqueued operation.
var ErrOutOfMemory = errors.New("memory: out of memory")

// CrossSpaceViolation reports a device-memory pointer used directly as a
// copy endpoint. Device global memory is addressed indirectly through
// kernel arguments, never dereferenced from host code; copies go through
// the buffer handles.
type CrossSpaceViolation struct {
	Endpoint string // "src" or "dst"
}

func (e *CrossSpaceViolation) Error() string {
	return fmt.Sprintf("memory: raw device pointer used as copy %s; use the buffer handle", e.Endpoint)
}

// SizeMismatchError reports a copy between buffers of different byte sizes.
type SizeMismatchError struct {
	Src int
	Dst int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("memory: copy size mismatch: src %d bytes, dst %d bytes", e.Src, e.Dst)
}
