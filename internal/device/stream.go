package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("bracer-stream")

// OpKind classifies queued operations for error attribution and metrics.
type OpKind int

const (
	OpAlloc OpKind = iota
	OpFree
	OpCopy
	OpMemset
	OpLaunch
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "alloc"
	case OpFree:
		return "free"
	case OpCopy:
		return "copy"
	case OpMemset:
		return "memset"
	case OpLaunch:
		return "launch"
	default:
		return "unknown"
	}
}

// Operation is one unit of asynchronous work on a stream. The run function
// executes on the stream's worker; completion hooks fire afterwards with the
// outcome (nil, the run error, or ErrCancelled) and are used by the buffer
// manager to retire outstanding-operation counts.
type Operation struct {
	kind  OpKind
	label string
	seq   uint64
	run   func() error
	hooks []func(error)
}

// NewOperation wraps run as a queueable operation. label identifies the op in
// errors and logs.
func NewOperation(kind OpKind, label string, run func() error) *Operation {
	return &Operation{kind: kind, label: label, run: run}
}

// OnComplete registers a hook invoked once the operation finishes, fails, or
// is cancelled. Must be called before Enqueue.
func (o *Operation) OnComplete(fn func(error)) *Operation {
	o.hooks = append(o.hooks, fn)
	return o
}

// Kind returns the operation's classification.
func (o *Operation) Kind() OpKind { return o.kind }

// Seq returns the stream sequence number, valid after Enqueue.
func (o *Operation) Seq() uint64 { return o.seq }

// StreamState is the coarse stream lifecycle: Idle on creation, HasPending
// once work is queued, Synchronizing while a caller drains, then Idle again.
type StreamState int32

const (
	StreamIdle StreamState = iota
	StreamHasPending
	StreamSynchronizing
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamHasPending:
		return "has-pending"
	case StreamSynchronizing:
		return "synchronizing"
	default:
		return "unknown"
	}
}

// Stream is an ordered FIFO queue of asynchronous operations bound to one
// device. Operations on the same stream execute in enqueue order; streams
// have no ordering relative to each other. Enqueue never blocks (the queue
// is unbounded); Synchronize is the sole blocking call.
type Stream struct {
	dev Device

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Operation
	closed bool

	pending sync.WaitGroup
	seq     atomic.Uint64
	state   atomic.Int32

	// abort is set after the first failure; later ops in the same batch are
	// skipped until the error is drained by Synchronize.
	abort atomic.Bool

	errMu    sync.Mutex
	firstErr *OperationError
}

// NewStream creates a stream bound to dev and starts its worker.
func NewStream(dev Device) *Stream {
	s := &Stream{dev: dev}
	s.cond = sync.NewCond(&s.mu)
	go s.worker()
	streamsOpen.Inc()
	return s
}

// Device returns the device this stream is bound to.
func (s *Stream) Device() Device { return s.dev }

// State reports the current lifecycle state.
func (s *Stream) State() StreamState { return StreamState(s.state.Load()) }

// Enqueue appends op to the tail of the queue and returns immediately. It
// never fails for transient device conditions; device-side failures surface
// at the next Synchronize. The only synchronous failure is enqueuing on a
// closed stream.
func (s *Stream) Enqueue(op *Operation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	op.seq = s.seq.Add(1)
	s.pending.Add(1)
	s.queue = append(s.queue, op)
	s.state.Store(int32(StreamHasPending))
	s.cond.Signal()
	s.mu.Unlock()

	opsEnqueued.WithLabelValues(s.dev.API.String(), op.kind.String()).Inc()
	queueDepth.Inc()
	return nil
}

// Synchronize blocks until every operation enqueued before the call has
// completed, then returns the first failure in enqueue order, if any.
// Operations queued after a failure were best-effort-cancelled; the stream
// is reusable once the error is drained. Enqueuing concurrently with
// Synchronize from another goroutine is caller error.
func (s *Stream) Synchronize() error {
	_, span := tracer.Start(context.Background(), "stream.Synchronize")
	defer span.End()
	span.SetAttributes(attribute.String("device", s.dev.String()))

	start := time.Now()
	s.state.Store(int32(StreamSynchronizing))
	s.pending.Wait()
	s.state.Store(int32(StreamIdle))
	syncDuration.Observe(time.Since(start).Seconds())

	s.errMu.Lock()
	err := s.firstErr
	s.firstErr = nil
	s.errMu.Unlock()
	s.abort.Store(false)

	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Close drains outstanding work, then stops the worker. The conservative
// block-and-drain policy means in-flight operations always complete (or
// fail) before the stream goes away; any drained error is returned.
func (s *Stream) Close() error {
	err := s.Synchronize()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Signal()
		streamsOpen.Dec()
	}
	s.mu.Unlock()
	return err
}

func (s *Stream) worker() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.execute(op)
	}
}

func (s *Stream) execute(op *Operation) {
	defer s.pending.Done()
	defer queueDepth.Dec()

	var err error
	if s.abort.Load() {
		err = ErrCancelled
	} else {
		err = s.runGuarded(op)
		if err != nil {
			s.abort.Store(true)
			opFailures.WithLabelValues(s.dev.API.String(), op.kind.String()).Inc()

			oe := &OperationError{Device: s.dev, Kind: op.kind, Label: op.label, Seq: op.seq, Err: err}
			s.errMu.Lock()
			if s.firstErr == nil {
				s.firstErr = oe
			}
			s.errMu.Unlock()

			log.Error().
				Err(err).
				Str("device", s.dev.String()).
				Str("op", op.kind.String()).
				Str("label", op.label).
				Uint64("seq", op.seq).
				Msg("Stream operation failed")
		}
	}

	for _, h := range op.hooks {
		h(err)
	}
}

// runGuarded converts a panicking operation into a device fault instead of
// taking down the worker. Unchecked launches with mismatched arguments land
// here.
func (s *Stream) runGuarded(op *Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &faultError{r}
		}
	}()
	return op.run()
}

type faultError struct {
	cause any
}

func (e *faultError) Error() string {
	return "device fault: " + formatPanic(e.cause)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown fault"
}
