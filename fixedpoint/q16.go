// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements the Q16.16 deterministic arithmetic
// substrate of spec.md §4.1. Every operation is bit-identical across
// platforms: no floating point, no platform-dependent rounding, wrapping
// two's-complement overflow by construction. The scalar Q16_16 operations
// do not allocate; the Vector and Bfp16Vec helpers return freshly allocated
// slices.
package fixedpoint

// Scale is 2^16: a Q16_16 value v represents the real number v / Scale.
const Scale = 1 << 16

// Q16_16 is a Q16.16 fixed-point value: a signed 32-bit integer interpreted
// as value * 2^16. Arithmetic is wrapping on overflow (spec §4.1); bounding
// inputs is the caller's responsibility.
type Q16_16 int32

// FromInt lifts an integer into Q16.16.
func FromInt(i int32) Q16_16 {
	return Q16_16(i) << 16
}

// FromFloat64 converts a float64 into Q16.16, for test fixtures and
// configuration literals only — never on the consensus path.
func FromFloat64(f float64) Q16_16 {
	return Q16_16(int64(f*Scale + signOf(f)*0.5))
}

func signOf(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// Float64 converts back to float64, for logging and test assertions only.
func (q Q16_16) Float64() float64 {
	return float64(q) / Scale
}

// Add returns a + b, wrapping on overflow.
func Add(a, b Q16_16) Q16_16 {
	return Q16_16(int32(a) + int32(b))
}

// Sub returns a - b, wrapping on overflow.
func Sub(a, b Q16_16) Q16_16 {
	return Q16_16(int32(a) - int32(b))
}

// Mul returns a * b using a 64-bit intermediate, per spec §4.1:
// (a * b) >> 16.
func Mul(a, b Q16_16) Q16_16 {
	return Q16_16((int64(a) * int64(b)) >> 16)
}

// Div returns a / b using a 64-bit intermediate and truncation toward zero:
// (a << 16) / b. Division by zero returns 0; callers on the consensus path
// must not present a zero divisor (bounded by construction in this core,
// per spec §4.1's "caller's responsibility to bound inputs").
func Div(a, b Q16_16) Q16_16 {
	if b == 0 {
		return 0
	}
	return Q16_16((int64(a) << 16) / int64(b))
}

// Neg returns -a, wrapping on overflow (only at the int32 minimum).
func Neg(a Q16_16) Q16_16 {
	return Q16_16(-int32(a))
}

// Abs returns |a|.
func Abs(a Q16_16) Q16_16 {
	if a < 0 {
		return Neg(a)
	}
	return a
}

// Clamp restricts a to [lo, hi].
func Clamp(a, lo, hi Q16_16) Q16_16 {
	if a < lo {
		return lo
	}
	if a > hi {
		return hi
	}
	return a
}

// Min returns the smaller of a and b.
func Min(a, b Q16_16) Q16_16 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Q16_16) Q16_16 {
	if a > b {
		return a
	}
	return b
}

// Sqrt computes an approximate square root via isqrt_u64 on the scaled
// representation: sqrt(a) in Q16.16 is isqrt(a_u64 << 16), since
// sqrt(a/2^16) * 2^16 == sqrt(a * 2^16).
func Sqrt(a Q16_16) Q16_16 {
	if a <= 0 {
		return 0
	}
	return Q16_16(isqrtU64(uint64(a) << 16))
}

// isqrtU64 computes floor(sqrt(n)) using bounded Newton iteration (<=32
// steps) from a fixed initial estimate derived from the bit length of n,
// per spec §4.1.
func isqrtU64(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	// Initial estimate: 2^ceil(bitlen(n)/2).
	bitLen := 0
	for v := n; v != 0; v >>= 1 {
		bitLen++
	}
	x := uint64(1) << ((bitLen + 1) / 2)
	if x == 0 {
		x = 1
	}
	for i := 0; i < 32; i++ {
		next := (x + n/x) / 2
		if next >= x {
			break
		}
		x = next
	}
	// Correct for the case the loop overshot by one due to integer
	// truncation in the Newton step.
	for x > 0 && x*x > n {
		x--
	}
	return x
}
