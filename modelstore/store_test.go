// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modelstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qres/raas-core/fixedpoint"
)

func TestNewOnEmptyBackendHasNoHead(t *testing.T) {
	ms, err := New(NewMemStorage())
	require.NoError(t, err)
	_, ok := ms.Head()
	require.False(t, ok)
}

func TestSaveThenHead(t *testing.T) {
	require := require.New(t)
	ms, err := New(NewMemStorage())
	require.NoError(err)

	model := fixedpoint.Vector{fixedpoint.FromFloat64(1.0), fixedpoint.FromFloat64(2.0)}
	require.NoError(ms.Save(1, model))

	head, ok := ms.Head()
	require.True(ok)
	require.Equal(uint64(1), head.Round)
	require.Equal(model, head.Model)
}

func TestColdStartRecoversHeadFromBackend(t *testing.T) {
	require := require.New(t)
	backend := NewMemStorage()
	ms, err := New(backend)
	require.NoError(err)
	model := fixedpoint.Vector{fixedpoint.FromFloat64(3.0)}
	require.NoError(ms.Save(5, model))

	// A fresh ModelStore over the same backend recovers the persisted head.
	recovered, err := New(backend)
	require.NoError(err)
	head, ok := recovered.Head()
	require.True(ok)
	require.Equal(uint64(5), head.Round)
	require.Equal(model, head.Model)
}

func TestSnapshotChainHashLinksToPredecessor(t *testing.T) {
	require := require.New(t)
	ms, err := New(NewMemStorage())
	require.NoError(err)

	require.NoError(ms.Save(1, fixedpoint.Vector{fixedpoint.FromFloat64(1.0)}))
	first, _ := ms.Head()
	firstHash := first.Hash()

	require.NoError(ms.Save(2, fixedpoint.Vector{fixedpoint.FromFloat64(2.0)}))
	second, _ := ms.Head()
	require.Equal(firstHash, second.PrevHash)
}

func TestVerifyChainDetectsFullyIntactChain(t *testing.T) {
	require := require.New(t)
	ms, err := New(NewMemStorage())
	require.NoError(err)
	for round := uint64(1); round <= 5; round++ {
		require.NoError(ms.Save(round, fixedpoint.Vector{fixedpoint.FromInt(int32(round))}))
	}
	verified, _, ok := ms.VerifyChain()
	require.True(ok)
	require.Equal(5, verified)
}

func TestRollbackAdoptsEarlierSnapshot(t *testing.T) {
	require := require.New(t)
	ms, err := New(NewMemStorage())
	require.NoError(err)
	require.NoError(ms.Save(1, fixedpoint.Vector{fixedpoint.FromFloat64(1.0)}))
	require.NoError(ms.Save(2, fixedpoint.Vector{fixedpoint.FromFloat64(2.0)}))
	require.NoError(ms.Save(3, fixedpoint.Vector{fixedpoint.FromFloat64(3.0)}))

	require.NoError(ms.Rollback(1))
	head, ok := ms.Head()
	require.True(ok)
	require.Equal(uint64(1), head.Round)
	require.InDelta(1.0, head.Model[0].Float64(), 0.01)
}

// failingStorage fails its Nth Put call (1-indexed) whenever failOn[N] is
// set, and otherwise delegates to inner.
type failingStorage struct {
	failOn map[int]bool
	calls  int
	inner  Storage
}

func (f *failingStorage) Has(key []byte) (bool, error)   { return f.inner.Has(key) }
func (f *failingStorage) Get(key []byte) ([]byte, error) { return f.inner.Get(key) }
func (f *failingStorage) Put(key, value []byte) error {
	f.calls++
	if f.failOn[f.calls] {
		return errors.New("disk full")
	}
	return f.inner.Put(key, value)
}
func (f *failingStorage) Delete(key []byte) error { return f.inner.Delete(key) }

func TestSafeModeAfterTwoConsecutiveFailures(t *testing.T) {
	require := require.New(t)
	backend := &failingStorage{failOn: map[int]bool{1: true, 2: true}, inner: NewMemStorage()}
	ms, err := New(backend)
	require.NoError(err)

	err = ms.Save(1, fixedpoint.Vector{fixedpoint.FromInt(1)})
	require.Error(err)
	require.False(ms.SafeMode())

	err = ms.Save(2, fixedpoint.Vector{fixedpoint.FromInt(2)})
	require.Error(err)
	require.True(ms.SafeMode())

	// Further writes are refused outright while in safe mode.
	err = ms.Save(3, fixedpoint.Vector{fixedpoint.FromInt(3)})
	require.Error(err)
}

func TestResetClearsSafeMode(t *testing.T) {
	require := require.New(t)
	backend := &failingStorage{failOn: map[int]bool{1: true, 2: true}, inner: NewMemStorage()}
	ms, err := New(backend)
	require.NoError(err)
	ms.Save(1, fixedpoint.Vector{fixedpoint.FromInt(1)})
	ms.Save(2, fixedpoint.Vector{fixedpoint.FromInt(2)})
	require.True(ms.SafeMode())

	ms.Reset()
	require.False(ms.SafeMode())
	require.NoError(ms.Save(3, fixedpoint.Vector{fixedpoint.FromInt(3)}))
}

func TestSuccessfulSaveResetsFailureCounter(t *testing.T) {
	require := require.New(t)
	// Call 1 (round 1's snapshot put) fails; call 4 (round 3's snapshot
	// put) fails too, but round 2 succeeded in between, so the second
	// failure alone must not trip safe mode.
	backend := &failingStorage{failOn: map[int]bool{1: true, 4: true}, inner: NewMemStorage()}
	ms, err := New(backend)
	require.NoError(err)

	require.Error(ms.Save(1, fixedpoint.Vector{fixedpoint.FromInt(1)}))
	require.NoError(ms.Save(2, fixedpoint.Vector{fixedpoint.FromInt(2)}))
	require.Error(ms.Save(3, fixedpoint.Vector{fixedpoint.FromInt(3)}))
	require.False(ms.SafeMode())
}
