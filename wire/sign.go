// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"crypto/ed25519"

	"github.com/luxfi/ids"
)

// DerivePeerID computes the spec §3 PeerId from a long-term Ed25519 public
// key: the key itself, since an Ed25519 public key is already the 32-byte
// identifier the spec calls for.
func DerivePeerID(pub ed25519.PublicKey) (PeerID, error) {
	return ids.ToID(pub)
}

// SignGhostUpdate signs u's framing bytes with priv and fills u.Signature.
func SignGhostUpdate(priv ed25519.PrivateKey, u GhostUpdate) GhostUpdate {
	sig := ed25519.Sign(priv, SigningBytesGhostUpdate(u))
	copy(u.Signature[:], sig)
	return u
}

// VerifyGhostUpdate checks u.Signature against pub. Per spec §4.2, a
// signature failure is rejected with a cryptographic-failure penalty.
func VerifyGhostUpdate(pub ed25519.PublicKey, u GhostUpdate) bool {
	return ed25519.Verify(pub, SigningBytesGhostUpdate(u), u.Signature[:])
}

// SignAuditChallenge signs c's framing bytes with priv.
func SignAuditChallenge(priv ed25519.PrivateKey, c AuditChallenge) AuditChallenge {
	sig := ed25519.Sign(priv, SigningBytesAuditChallenge(c))
	copy(c.Signature[:], sig)
	return c
}

// VerifyAuditChallenge checks c.Signature against pub.
func VerifyAuditChallenge(pub ed25519.PublicKey, c AuditChallenge) bool {
	return ed25519.Verify(pub, SigningBytesAuditChallenge(c), c.Signature[:])
}

// SignAuditResponse signs r's framing bytes with priv.
func SignAuditResponse(priv ed25519.PrivateKey, r AuditResponse) AuditResponse {
	sig := ed25519.Sign(priv, SigningBytesAuditResponse(r))
	copy(r.Signature[:], sig)
	return r
}

// VerifyAuditResponse checks r.Signature against pub.
func VerifyAuditResponse(pub ed25519.PublicKey, r AuditResponse) bool {
	return ed25519.Verify(pub, SigningBytesAuditResponse(r), r.Signature[:])
}
