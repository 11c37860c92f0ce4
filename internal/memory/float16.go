package memory

import (
	"math"
	"unsafe"
)

// Float16 host staging uses the IEEE 754 binary16 encoding. Out-of-range
// values clamp to the max normal instead of overflowing to Inf, and
// subnormals flush to zero; both keep half-precision kernels NaN-free.

const maxFP16 = 65504.0
const minNormalFP16 = 6.10351562e-5

// F32ToF16 converts a float32 to its binary16 bit pattern.
func F32ToF16(f float32) uint16 {
	if math.IsNaN(float64(f)) {
		return 0x7E00
	}
	if math.IsInf(float64(f), 1) {
		return 0x7C00
	}
	if math.IsInf(float64(f), -1) {
		return 0xFC00
	}

	if f > maxFP16 {
		f = maxFP16
	} else if f < -maxFP16 {
		f = -maxFP16
	}

	absF := f
	if absF < 0 {
		absF = -absF
	}
	if absF < minNormalFP16 && absF > 0 {
		if f < 0 {
			return 0x8000
		}
		return 0x0000
	}

	bits := math.Float32bits(f)
	sign := (bits >> 16) & 0x8000
	exp := int((bits>>23)&0xFF) - 127 + 15
	frac := (bits >> 13) & 0x3FF

	if exp >= 0x1F {
		// Clamp to max normal rather than Inf.
		if sign != 0 {
			return uint16(sign | 0x7BFF)
		}
		return 0x7BFF
	}
	if exp <= 0 {
		// Flush to zero.
		return uint16(sign)
	}
	return uint16(sign | (uint32(exp) << 10) | frac)
}

// F16ToF32 converts a binary16 bit pattern to float32.
func F16ToF32(h uint16) float32 {
	sign := (uint32(h) >> 15) & 1
	exp := (uint32(h) >> 10) & 0x1F
	frac := uint32(h) & 0x3FF

	if exp == 0 { // zero / denorm
		return 0.0
	}
	if exp == 31 { // Inf / NaN
		bits := (sign << 31) | (0xFF << 23) | (frac << 13)
		return *(*float32)(unsafe.Pointer(&bits))
	}

	newExp := int(exp) - 15 + 127
	bits := (sign << 31) | (uint32(newExp) << 23) | (frac << 13)
	return *(*float32)(unsafe.Pointer(&bits))
}
