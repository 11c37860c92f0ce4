//go:build cgo && blas

package kernel

// Registers the netlib BLAS implementation (Accelerate on macOS, OpenBLAS
// on Linux) for the built-in f32 kernels when CGO is available.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas32.Use(netlib.Implementation{})
	log.Debug().Msg("⚡ CGO/BLAS Acceleration Enabled (netlib)")
}
