package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testDevice() Device { return Device{Ordinal: 0, API: CUDA} }

func TestStreamFIFOOrder(t *testing.T) {
	s := NewStream(testDevice())
	defer s.Close()

	var order []string
	var mu sync.Mutex
	record := func(name string) *Operation {
		return NewOperation(OpLaunch, name, func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	for _, name := range []string{"A", "B", "C"} {
		if err := s.Enqueue(record(name)); err != nil {
			t.Fatalf("Enqueue(%s): %v", name, err)
		}
	}
	if err := s.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("completion order %v, want [A B C]", order)
	}
}

func TestStreamStateMachine(t *testing.T) {
	s := NewStream(testDevice())
	defer s.Close()

	if s.State() != StreamIdle {
		t.Errorf("new stream state = %v, want idle", s.State())
	}

	release := make(chan struct{})
	s.Enqueue(NewOperation(OpMemset, "hold", func() error {
		<-release
		return nil
	}))
	if s.State() != StreamHasPending {
		t.Errorf("state after enqueue = %v, want has-pending", s.State())
	}

	// Second enqueue while pending keeps the queue growing.
	s.Enqueue(NewOperation(OpMemset, "tail", func() error { return nil }))
	if s.State() != StreamHasPending {
		t.Errorf("state = %v, want has-pending", s.State())
	}

	close(release)
	if err := s.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if s.State() != StreamIdle {
		t.Errorf("state after synchronize = %v, want idle", s.State())
	}
}

func TestEnqueueDoesNotBlock(t *testing.T) {
	s := NewStream(testDevice())
	defer s.Close()

	release := make(chan struct{})
	s.Enqueue(NewOperation(OpCopy, "block", func() error {
		<-release
		return nil
	}))

	// Queue far more than any internal buffer; all must return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			s.Enqueue(NewOperation(OpCopy, "filler", func() error { return nil }))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked")
	}
	close(release)
	s.Synchronize()
}

func TestSynchronizeReportsFirstErrorAndCancelsRest(t *testing.T) {
	s := NewStream(testDevice())
	defer s.Close()

	boom := errors.New("ecc error")
	var ranAfterFailure bool
	var cancelled error

	s.Enqueue(NewOperation(OpCopy, "ok", func() error { return nil }))
	s.Enqueue(NewOperation(OpLaunch, "bad", func() error { return boom }))
	s.Enqueue(NewOperation(OpLaunch, "worse", func() error { return errors.New("second failure") }))
	s.Enqueue(NewOperation(OpCopy, "after", func() error {
		ranAfterFailure = true
		return nil
	}).OnComplete(func(err error) { cancelled = err }))

	err := s.Synchronize()
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("Synchronize error = %v, want OperationError", err)
	}
	if oe.Label != "bad" || oe.Kind != OpLaunch {
		t.Errorf("error attributes wrong party: %+v", oe)
	}
	if !errors.Is(oe, boom) {
		t.Error("OperationError should unwrap to the device error")
	}
	if ranAfterFailure {
		t.Error("operation after failure must be cancelled, not executed")
	}
	if !errors.Is(cancelled, ErrCancelled) {
		t.Errorf("completion hook saw %v, want ErrCancelled", cancelled)
	}

	// The stream stays usable once the error is drained.
	var ran bool
	s.Enqueue(NewOperation(OpMemset, "fresh", func() error { ran = true; return nil }))
	if err := s.Synchronize(); err != nil {
		t.Fatalf("Synchronize after drain: %v", err)
	}
	if !ran {
		t.Error("stream unusable after drained error")
	}
}

func TestPanicBecomesDeviceFault(t *testing.T) {
	s := NewStream(testDevice())
	defer s.Close()

	s.Enqueue(NewOperation(OpLaunch, "faulty", func() error {
		panic("illegal address")
	}))

	err := s.Synchronize()
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("Synchronize error = %v, want OperationError", err)
	}
	if oe.Label != "faulty" {
		t.Errorf("fault attributed to %q", oe.Label)
	}
}

func TestCompletionHooksRun(t *testing.T) {
	s := NewStream(testDevice())
	defer s.Close()

	var got error = errors.New("sentinel")
	s.Enqueue(NewOperation(OpAlloc, "a", func() error { return nil }).
		OnComplete(func(err error) { got = err }))
	s.Synchronize()

	if got != nil {
		t.Errorf("hook error = %v, want nil", got)
	}
}

func TestStreamsRunIndependently(t *testing.T) {
	d := testDevice()
	s1 := NewStream(d)
	s2 := NewStream(d)
	defer s1.Close()
	defer s2.Close()

	// No cross-stream ordering is promised: each stream's effect must be
	// correct in isolation under either interleaving.
	var a, b int
	release := make(chan struct{})
	s1.Enqueue(NewOperation(OpLaunch, "slow", func() error {
		<-release
		a = 1
		return nil
	}))
	s2.Enqueue(NewOperation(OpLaunch, "fast", func() error {
		b = 2
		return nil
	}))

	// s2 completes even while s1 is stalled: streams do not serialize
	// against each other.
	if err := s2.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if b != 2 {
		t.Error("s2 effect missing")
	}

	close(release)
	if err := s1.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if a != 1 {
		t.Error("s1 effect missing")
	}
}

func TestCrossStreamOrderingViaSyncThenEnqueue(t *testing.T) {
	d := testDevice()
	s1 := NewStream(d)
	s2 := NewStream(d)
	defer s1.Close()
	defer s2.Close()

	shared := 0
	s1.Enqueue(NewOperation(OpLaunch, "produce", func() error {
		shared = 41
		return nil
	}))
	// Explicit synchronize-then-enqueue is the only cross-stream fence.
	if err := s1.Synchronize(); err != nil {
		t.Fatal(err)
	}
	s2.Enqueue(NewOperation(OpLaunch, "consume", func() error {
		shared++
		return nil
	}))
	if err := s2.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if shared != 42 {
		t.Errorf("shared = %d, want 42", shared)
	}
}

func TestCloseDrainsPendingWork(t *testing.T) {
	s := NewStream(testDevice())

	n := 0
	for i := 0; i < 64; i++ {
		s.Enqueue(NewOperation(OpMemset, fmt.Sprintf("op-%d", i), func() error {
			n++
			return nil
		}))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n != 64 {
		t.Errorf("Close drained %d/64 operations", n)
	}
	if err := s.Enqueue(NewOperation(OpMemset, "late", func() error { return nil })); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrStreamClosed", err)
	}
}
