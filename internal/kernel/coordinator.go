package kernel

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bracer/internal/device"
)

// Specialization carries the compile-time parameters a kernel is
// monomorphized over (tile size, dtype, rank, ...). Encoded canonically so
// equal specializations always hit the same cache entry.
type Specialization map[string]any

// canonical CBOR sorts map keys, giving a stable byte encoding.
var specEncMode, _ = cbor.CanonicalEncOptions().EncMode()

// Coordinator compiles kernels and submits launch requests. Compilation is
// cached per (kernel identity, device API, specialization); the cache is
// populated lazily on first Compile.
type Coordinator struct {
	cache *compileCache
}

// NewCoordinator builds a coordinator with an empty compile cache.
func NewCoordinator() *Coordinator {
	return &Coordinator{cache: newCompileCache()}
}

// Compile lowers src for the stream's device, reusing a cached result for
// an identical (name, api, specialization) triple. The compiled handle is
// reusable across many launches.
func (c *Coordinator) Compile(src *Source, stream *device.Stream, spec Specialization) (*Compiled, error) {
	if src == nil || src.Body == nil {
		return nil, fmt.Errorf("kernel: nil source")
	}
	if src.Name == "" {
		return nil, fmt.Errorf("kernel: unnamed source")
	}

	api := stream.Device().API
	key, err := specKey(src.Name, api, spec)
	if err != nil {
		return nil, err
	}

	if k, ok := c.cache.Get(key); ok {
		compileHits.Inc()
		return k, nil
	}
	compileMisses.Inc()

	start := time.Now()
	// Target-specific lowering happens here once per specialization. The
	// simulated executor runs the body directly, so lowering is signature
	// validation plus cache installation.
	k := &Compiled{src: src, api: api, key: key}
	c.cache.Put(key, k)

	log.Debug().
		Str("kernel", src.Name).
		Str("api", api.String()).
		Dur("elapsed", time.Since(start)).
		Int("cache_size", c.cache.Size()).
		Msg("Compiled kernel")
	return k, nil
}

func specKey(name string, api device.API, spec Specialization) (string, error) {
	raw, err := specEncMode.Marshal(map[string]any{
		"kernel": name,
		"api":    api.String(),
		"spec":   map[string]any(spec),
	})
	if err != nil {
		return "", fmt.Errorf("kernel: encode specialization: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// EnqueueLaunch validates args against the kernel's declared signature and
// submits the launch. Validation failures are synchronous
// ArgumentMismatchErrors and queue nothing; the launch itself is
// asynchronous. Missing grid/block y/z components default to 1.
func (c *Coordinator) EnqueueLaunch(stream *device.Stream, k *Compiled, args Args, grid, block device.Dim3) error {
	if len(args) != len(k.src.Params) {
		pos := len(args)
		if len(k.src.Params) < pos {
			pos = len(k.src.Params)
		}
		return &ArgumentMismatchError{
			Kernel:   k.src.Name,
			Position: pos,
			Want:     fmt.Sprintf("%d arguments", len(k.src.Params)),
			Got:      fmt.Sprintf("%d arguments", len(args)),
		}
	}
	for i, want := range k.src.Params {
		if got := args[i].Kind(); got != want {
			return &ArgumentMismatchError{
				Kernel:   k.src.Name,
				Position: i,
				Want:     want.String(),
				Got:      got.String(),
			}
		}
	}
	return c.enqueue(stream, k, args, grid, block)
}

// EnqueueLaunchUnchecked submits the launch without validating the
// arguments. Any mismatch manifests as an opaque device-side fault,
// detectable only at Synchronize.
func (c *Coordinator) EnqueueLaunchUnchecked(stream *device.Stream, k *Compiled, args Args, grid, block device.Dim3) error {
	return c.enqueue(stream, k, args, grid, block)
}

func (c *Coordinator) enqueue(stream *device.Stream, k *Compiled, args Args, grid, block device.Dim3) error {
	req := LaunchRequest{Kernel: k, Args: args, Grid: grid, Block: block}

	op := device.NewOperation(device.OpLaunch, k.src.Name, func() error {
		device.Launch3D(req.Grid, req.Block, func(tid device.ThreadID) {
			req.Kernel.src.Body(tid, req.Args)
		})
		return nil
	})
	// Launches hold their buffer and view arguments live until completion.
	var unpins []func(error)
	for _, a := range args {
		var unpin func(error)
		switch arg := a.(type) {
		case Ptr:
			unpin = arg.BeginOp()
		case Tensor:
			unpin = arg.BeginOp()
		default:
			continue
		}
		unpins = append(unpins, unpin)
		op.OnComplete(unpin)
	}
	launches.Inc()
	if err := stream.Enqueue(op); err != nil {
		// Nothing was queued, so the completion hooks never fire; retire
		// the pins here or the buffers stay unfreeable.
		for _, unpin := range unpins {
			unpin(err)
		}
		return err
	}
	return nil
}
