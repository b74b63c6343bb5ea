// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

// Vector is a fixed-dimension Q16.16 vector: a ModelDelta, a GhostUpdate
// payload, or a raw prediction (spec §3).
type Vector []Q16_16

// ZeroVector returns a Vector of the given dimension, all zero.
func ZeroVector(dim int) Vector {
	return make(Vector, dim)
}

// AddVec returns the coordinate-wise sum of a and b, with len(a)
// coordinates. Panics if b is shorter than a; extra coordinates of b are
// ignored. Callers must have rejected dimension mismatches earlier in the
// pipeline (spec §4.2 failure semantics).
func AddVec(a, b Vector) Vector {
	out := make(Vector, len(a))
	for i := range a {
		out[i] = Add(a[i], b[i])
	}
	return out
}

// L2DistanceSquared returns the squared L2 distance between a and b in
// Q16.16, used by the auditor's tolerance check (spec §4.4) to avoid a
// square root when only a threshold comparison is needed.
func L2DistanceSquared(a, b Vector) Q16_16 {
	var sum Q16_16
	for i := range a {
		d := Sub(a[i], b[i])
		sum = Add(sum, Mul(d, d))
	}
	return sum
}

// L2Distance returns the L2 distance between a and b in Q16.16.
func L2Distance(a, b Vector) Q16_16 {
	return Sqrt(L2DistanceSquared(a, b))
}
