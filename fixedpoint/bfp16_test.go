// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromVectorRoundTripSmallValues(t *testing.T) {
	require := require.New(t)

	values := Vector{FromInt(1), FromInt(-2), FromInt(3), 0}
	bfp := FromVector(values)
	require.Equal(int8(0), bfp.Exponent)

	back := bfp.ToVector()
	require.Equal(values, back)
}

func TestFromVectorLargeValuesQuantize(t *testing.T) {
	require := require.New(t)

	values := Vector{FromInt(1 << 20), FromInt(1), FromInt(-7)}
	bfp := FromVector(values)
	require.Greater(bfp.Exponent, int8(0))

	for _, m := range bfp.Mantissas {
		require.LessOrEqual(m, MaxMantissa)
		require.GreaterOrEqual(m, MinMantissa)
	}

	back := bfp.ToVector()
	// The dominant coordinate should be reconstructed within one quantization step.
	step := Q16_16(1) << uint(bfp.Exponent)
	require.LessOrEqual(Abs(Sub(back[0], values[0])), step)
}

func TestFromVectorEmpty(t *testing.T) {
	require := require.New(t)
	bfp := FromVector(nil)
	require.Equal(int8(0), bfp.Exponent)
	require.Empty(bfp.ToVector())
}

func TestFromVectorAllZero(t *testing.T) {
	require := require.New(t)
	bfp := FromVector(Vector{0, 0, 0})
	require.Equal(int8(0), bfp.Exponent)
	for _, m := range bfp.Mantissas {
		require.Zero(m)
	}
}

func TestSentinelDetection(t *testing.T) {
	require := require.New(t)

	v := Sentinel(4)
	require.True(v.IsSentinel())

	legit := FromVector(Vector{FromInt(1)})
	require.False(legit.IsSentinel())
}

func TestShiftRightRoundHalfToEven(t *testing.T) {
	require := require.New(t)

	// 2/2 = 1 exactly (no rounding needed).
	require.Equal(int64(1), shiftRightRound(2, 1))
	// 1/2 = 0.5 is a tie and rounds to even (0): floor=0, rem=1, half=1, 0 is even, stays 0.
	require.Equal(int64(0), shiftRightRound(1, 1))
	// 3/2 = 1.5 is a tie and rounds to even (2).
	require.Equal(int64(2), shiftRightRound(3, 1))
	// negative values
	require.Equal(int64(-1), shiftRightRound(-2, 1))
	require.Equal(int64(-2), shiftRightRound(-3, 1))
}
