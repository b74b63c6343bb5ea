// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modelstore

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/rerrors"
)

// Snapshot is one persisted model state (spec §3 ModelSnapshot): the model
// vector at Round, chained to its predecessor by PrevHash so a corrupted or
// truncated chain is detectable on load.
type Snapshot struct {
	Round    uint64
	Model    fixedpoint.Vector
	PrevHash [32]byte
}

// Hash computes this snapshot's chain hash: BLAKE3(round || prev_hash ||
// model_bytes), per spec §4.7.
func (s Snapshot) Hash() [32]byte {
	buf := make([]byte, 0, 8+32+len(s.Model)*4)
	var roundBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], s.Round)
	buf = append(buf, roundBytes[:]...)
	buf = append(buf, s.PrevHash[:]...)
	for _, v := range s.Model {
		var vb [4]byte
		binary.BigEndian.PutUint32(vb[:], uint32(v))
		buf = append(buf, vb[:]...)
	}
	return blake3.Sum256(buf)
}

func encodeSnapshot(s Snapshot) []byte {
	buf := make([]byte, 8+32+4+len(s.Model)*4)
	off := 0
	binary.BigEndian.PutUint64(buf[off:off+8], s.Round)
	off += 8
	copy(buf[off:off+32], s.PrevHash[:])
	off += 32
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(s.Model)))
	off += 4
	for _, v := range s.Model {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
		off += 4
	}
	return buf
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) < 8+32+4 {
		return Snapshot{}, fmt.Errorf("modelstore: snapshot frame too short: %d bytes", len(data))
	}
	var s Snapshot
	off := 0
	s.Round = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	copy(s.PrevHash[:], data[off:off+32])
	off += 32
	dim := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	want := off + dim*4
	if len(data) != want {
		return Snapshot{}, fmt.Errorf("modelstore: snapshot frame: want %d bytes, got %d", want, len(data))
	}
	s.Model = make(fixedpoint.Vector, dim)
	for i := 0; i < dim; i++ {
		s.Model[i] = fixedpoint.Q16_16(int32(binary.BigEndian.Uint32(data[off : off+4])))
		off += 4
	}
	return s, nil
}

func snapshotKey(round uint64) []byte {
	key := make([]byte, len("snapshot/")+8)
	copy(key, "snapshot/")
	binary.BigEndian.PutUint64(key[len("snapshot/"):], round)
	return key
}

var headKey = []byte("head")

// ModelStore owns the durable snapshot chain for one node (spec §4.7). It
// enters safe mode after two consecutive storage failures, refusing
// further writes until Reset is called by the operator.
type ModelStore struct {
	backend       Storage
	head          *Snapshot
	consecutiveFails int
	safeMode      bool
}

// New constructs a ModelStore over backend, recovering the latest snapshot
// if one exists (spec §4.7's cold-start recovery path).
func New(backend Storage) (*ModelStore, error) {
	ms := &ModelStore{backend: backend}
	ok, err := backend.Has(headKey)
	if err != nil {
		return nil, &rerrors.StorageError{Op: "has-head", Err: err}
	}
	if !ok {
		return ms, nil
	}
	headBytes, err := backend.Get(headKey)
	if err != nil {
		return nil, &rerrors.StorageError{Op: "get-head", Err: err}
	}
	round := binary.BigEndian.Uint64(headBytes)
	snap, err := ms.load(round)
	if err != nil {
		return nil, err
	}
	ms.head = &snap
	return ms, nil
}

func (ms *ModelStore) load(round uint64) (Snapshot, error) {
	raw, err := ms.backend.Get(snapshotKey(round))
	if err != nil {
		return Snapshot{}, &rerrors.StorageError{Op: "get-snapshot", Err: err}
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return Snapshot{}, &rerrors.StorageError{Op: "decode-snapshot", Err: err}
	}
	return snap, nil
}

// Head returns the most recently persisted snapshot, if any.
func (ms *ModelStore) Head() (Snapshot, bool) {
	if ms.head == nil {
		return Snapshot{}, false
	}
	return *ms.head, true
}

// SafeMode reports whether writes are currently refused (spec §4.7: two
// consecutive storage failures).
func (ms *ModelStore) SafeMode() bool { return ms.safeMode }

// Save persists model as the snapshot for round, chained to the current
// head. On success it resets the consecutive-failure counter; on failure
// it increments the counter and, at two consecutive failures, enters safe
// mode (spec §4.7).
func (ms *ModelStore) Save(round uint64, model fixedpoint.Vector) error {
	if ms.safeMode {
		return rerrors.ErrProtocol
	}

	var prevHash [32]byte
	if ms.head != nil {
		prevHash = ms.head.Hash()
	}
	snap := Snapshot{Round: round, Model: model, PrevHash: prevHash}

	if err := ms.backend.Put(snapshotKey(round), encodeSnapshot(snap)); err != nil {
		return ms.fail("put-snapshot", err)
	}
	var headBytes [8]byte
	binary.BigEndian.PutUint64(headBytes[:], round)
	if err := ms.backend.Put(headKey, headBytes[:]); err != nil {
		return ms.fail("put-head", err)
	}

	ms.consecutiveFails = 0
	ms.head = &snap
	return nil
}

func (ms *ModelStore) fail(op string, err error) error {
	ms.consecutiveFails++
	if ms.consecutiveFails >= 2 {
		ms.safeMode = true
	}
	return &rerrors.StorageError{Op: op, Err: err}
}

// Rollback reloads and adopts the snapshot at round, discarding any more
// recent head (spec §4.7's INV-7 liveness fallback: the caller has decided
// to roll the model back after T_max rounds with no successful
// aggregation).
func (ms *ModelStore) Rollback(round uint64) error {
	snap, err := ms.load(round)
	if err != nil {
		return err
	}
	ms.head = &snap
	var headBytes [8]byte
	binary.BigEndian.PutUint64(headBytes[:], round)
	if err := ms.backend.Put(headKey, headBytes[:]); err != nil {
		return ms.fail("put-head-rollback", err)
	}
	return nil
}

// VerifyChain walks backward from the head, loading the predecessor of each
// snapshot at round-1 and confirming its PrevHash matches that
// predecessor's Hash(). It succeeds when it reaches a snapshot with a zero
// PrevHash (the genesis snapshot). A non-genesis snapshot whose round-1
// predecessor is missing or hashes differently is reported as a broken
// link. Returns the number of snapshots verified and the broken link's
// round, if any.
func (ms *ModelStore) VerifyChain() (verified int, brokenAt uint64, ok bool) {
	if ms.head == nil {
		return 0, 0, true
	}
	cur := *ms.head
	verified = 1
	for cur.PrevHash != ([32]byte{}) {
		if cur.Round == 0 {
			return verified, cur.Round, false
		}
		prev, err := ms.load(cur.Round - 1)
		if err != nil {
			return verified, cur.Round, false
		}
		if prev.Hash() != cur.PrevHash {
			return verified, cur.Round, false
		}
		cur = prev
		verified++
	}
	return verified, 0, true
}

// Reset clears safe mode, allowing writes to resume. This is an explicit
// operator action (spec §4.7): the store never exits safe mode on its own.
func (ms *ModelStore) Reset() {
	ms.safeMode = false
	ms.consecutiveFails = 0
}
