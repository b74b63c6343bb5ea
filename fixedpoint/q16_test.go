// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubWrap(t *testing.T) {
	require := require.New(t)

	a := Q16_16(math.MaxInt32)
	b := Q16_16(1)
	require.Equal(Q16_16(math.MinInt32), Add(a, b))

	require.Equal(FromInt(3), Add(FromInt(1), FromInt(2)))
	require.Equal(FromInt(-1), Sub(FromInt(1), FromInt(2)))
}

func TestMulDiv(t *testing.T) {
	require := require.New(t)

	two := FromInt(2)
	three := FromInt(3)
	require.Equal(FromInt(6), Mul(two, three))

	six := FromInt(6)
	require.Equal(three, Div(six, two))

	// Fractional multiplication: 0.5 * 0.5 == 0.25
	half := FromFloat64(0.5)
	quarter := Mul(half, half)
	require.InDelta(0.25, quarter.Float64(), 1e-4)
}

func TestDivByZero(t *testing.T) {
	require.Equal(t, Q16_16(0), Div(FromInt(5), 0))
}

func TestClampMinMax(t *testing.T) {
	require := require.New(t)

	lo, hi := FromInt(0), FromInt(1)
	require.Equal(lo, Clamp(FromInt(-5), lo, hi))
	require.Equal(hi, Clamp(FromInt(5), lo, hi))
	require.Equal(FromInt(1), Min(FromInt(1), FromInt(2)))
	require.Equal(FromInt(2), Max(FromInt(1), FromInt(2)))
}

func TestSqrt(t *testing.T) {
	require := require.New(t)

	require.Equal(Q16_16(0), Sqrt(0))
	require.Equal(Q16_16(0), Sqrt(-1))

	four := FromInt(4)
	two := Sqrt(four)
	require.InDelta(2.0, two.Float64(), 1e-3)

	nine := FromInt(9)
	three := Sqrt(nine)
	require.InDelta(3.0, three.Float64(), 1e-3)

	half := FromFloat64(0.25)
	require.InDelta(0.5, Sqrt(half).Float64(), 1e-3)
}

func TestSqrtMonotone(t *testing.T) {
	require := require.New(t)
	prev := Q16_16(0)
	for i := int32(1); i < 10000; i += 37 {
		v := Sqrt(FromInt(i))
		require.GreaterOrEqual(v, prev)
		prev = v
	}
}
