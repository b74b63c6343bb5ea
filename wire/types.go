// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the bit-exact wire format of spec.md §6: the
// byte layout of GhostUpdate, AuditChallenge, and AuditResponse, and the
// Ed25519 signing/verification over that layout. Encoding never touches
// floating point or platform-dependent byte order — everything is explicit
// big-endian, matching the teacher's framing discipline in
// networking/sender and codec, generalized to a binary rather than a JSON
// frame (spec §6 requires bit-exact bytes, which JSON cannot produce).
package wire

import (
	"github.com/luxfi/ids"

	"github.com/qres/raas-core/fixedpoint"
)

// PeerID is the 32-byte peer identifier of spec §3, shared with the
// reputation table's key type.
type PeerID = ids.ID

// SignatureSize is the byte length of an Ed25519 signature.
const SignatureSize = 64

// Signature is a raw Ed25519 signature over every preceding field.
type Signature [SignatureSize]byte

// GhostUpdate is the per-round peer contribution of spec §3: a signed
// Bfp16-encoded delta plus the sender's self-reported residual error and
// accuracy improvement.
type GhostUpdate struct {
	Sender        PeerID
	Round         uint64
	Delta         fixedpoint.Bfp16Vec
	ResidualError fixedpoint.Q16_16
	AccuracyDelta fixedpoint.Q16_16
	Signature     Signature
}

// NonceSize is the byte length of an audit nonce.
const NonceSize = 32

// AuditChallenge is the auditor's signed challenge of spec §3/§4.4.
type AuditChallenge struct {
	Auditor   PeerID
	Target    PeerID
	Round     uint64
	Nonce     [NonceSize]byte
	Timestamp uint64
	Signature Signature
}

// AuditResponse is the target's signed reply of spec §3/§4.4.
type AuditResponse struct {
	Prediction      fixedpoint.Vector
	LocalDataHash   [32]byte
	ClaimedGradient fixedpoint.Vector
	Nonce           [NonceSize]byte
	Signature       Signature
}
