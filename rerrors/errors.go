// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rerrors collects the error taxonomy of the RaaS core (spec §7).
// Nothing on the consensus path panics; every failure mode here is a value.
package rerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol covers malformed framing, a bad signature, or a dimension
	// mismatch. The offending message is rejected silently; the sender is
	// penalized where identifiable.
	ErrProtocol = errors.New("protocol error: malformed or unauthenticated message")

	// ErrReplay covers a stale round or a duplicate nonce.
	ErrReplay = errors.New("replay error: stale round or duplicate nonce")

	// ErrInsufficientEnergy is non-fatal: the caller must queue or defer.
	ErrInsufficientEnergy = errors.New("insufficient energy")

	// ErrNoQuorum is non-fatal: the regime remains in its current state.
	ErrNoQuorum = errors.New("no quorum")

	// ErrLivenessExceeded signals INV-7: rollback to the last snapshot and
	// reset of the detector state.
	ErrLivenessExceeded = errors.New("liveness bound exceeded")

	// ErrBanned is returned when an operation is attempted by or on behalf
	// of a peer whose reputation has fallen below the ban threshold.
	ErrBanned = errors.New("peer is banned")

	// ErrEmptyInput signals that every candidate input was excluded and no
	// weight remains. aggregate.Aggregate does not return it; it reports
	// that case through Result.Warning.
	ErrEmptyInput = errors.New("no admissible updates")
)

// AuditFailure is the structured form of spec §7's AuditFailure: dimension
// mismatch, nonce mismatch, timeout, or an L2 distance outside tolerance.
type AuditFailure struct {
	Reason string
	Target [32]byte
}

func (e *AuditFailure) Error() string {
	return fmt.Sprintf("audit failure for target %x: %s", e.Target, e.Reason)
}

// StorageError wraps a failure from the injected Storage backend. Two
// consecutive StorageErrors force safe-mode (no new snapshot hash chained).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
