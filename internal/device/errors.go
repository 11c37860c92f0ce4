package device

import (
	"errors"
	"fmt"
)

// ErrCancelled marks operations skipped after an earlier failure in the same
// batch. Completion hooks still run so resource counters stay balanced.
var ErrCancelled = errors.New("device: operation cancelled")

// ErrStreamClosed is returned when enqueuing on a closed stream.
var ErrStreamClosed = errors.New("device: stream closed")

// OperationError reports an asynchronous device-side failure. It surfaces at
// Synchronize and identifies the failing operation by kind, label, and
// stream sequence number so callers can tell a failed launch from a failed
// copy.
type OperationError struct {
	Device Device
	Kind   OpKind
	Label  string
	Seq    uint64
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("device %s: %s op %q (seq %d) failed: %v", e.Device, e.Kind, e.Label, e.Seq, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
