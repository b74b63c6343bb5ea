// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qres/raas-core/fixedpoint"
)

func TestGhostUpdateRoundTrip(t *testing.T) {
	require := require.New(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(err)
	sender, err := DerivePeerID(pub)
	require.NoError(err)

	delta := fixedpoint.FromVector(fixedpoint.Vector{
		fixedpoint.FromFloat64(0.1),
		fixedpoint.FromFloat64(-0.2),
		fixedpoint.FromFloat64(1.5),
		0,
	})

	u := GhostUpdate{
		Sender:        sender,
		Round:         42,
		Delta:         delta,
		ResidualError: fixedpoint.FromFloat64(0.01),
		AccuracyDelta: fixedpoint.FromFloat64(0.05),
	}
	u = SignGhostUpdate(priv, u)

	encoded := EncodeGhostUpdate(u)
	decoded, err := DecodeGhostUpdate(encoded, len(delta.Mantissas))
	require.NoError(err)
	require.Equal(u, decoded)

	require.True(VerifyGhostUpdate(pub, decoded))
}

func TestGhostUpdateDecodeWrongLength(t *testing.T) {
	_, err := DecodeGhostUpdate([]byte{1, 2, 3}, 4)
	require.Error(t, err)
}

func TestGhostUpdateTamperedSignatureFails(t *testing.T) {
	require := require.New(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(err)
	sender, err := DerivePeerID(pub)
	require.NoError(err)

	u := GhostUpdate{
		Sender: sender,
		Round:  1,
		Delta:  fixedpoint.FromVector(fixedpoint.Vector{fixedpoint.FromInt(1)}),
	}
	u = SignGhostUpdate(priv, u)
	u.Round = 2 // tamper after signing
	require.False(VerifyGhostUpdate(pub, u))
}

func TestAuditChallengeRoundTrip(t *testing.T) {
	require := require.New(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(err)
	auditor, err := DerivePeerID(pub)
	require.NoError(err)
	target, err := DerivePeerID(pub)
	require.NoError(err)

	c := AuditChallenge{
		Auditor:   auditor,
		Target:    target,
		Round:     7,
		Timestamp: 123456,
	}
	c.Nonce[0] = 0xAB
	c = SignAuditChallenge(priv, c)

	encoded := EncodeAuditChallenge(c)
	decoded, err := DecodeAuditChallenge(encoded)
	require.NoError(err)
	require.Equal(c, decoded)
	require.True(VerifyAuditChallenge(pub, decoded))
}

func TestAuditResponseRoundTrip(t *testing.T) {
	require := require.New(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	r := AuditResponse{
		Prediction:      fixedpoint.Vector{fixedpoint.FromInt(1), fixedpoint.FromInt(2)},
		ClaimedGradient: fixedpoint.Vector{fixedpoint.FromInt(-1), fixedpoint.FromInt(0)},
	}
	r.Nonce[1] = 0xCD
	r = SignAuditResponse(priv, r)

	encoded := EncodeAuditResponse(r)
	decoded, err := DecodeAuditResponse(encoded, 2)
	require.NoError(err)
	require.Equal(r, decoded)
	require.True(VerifyAuditResponse(pub, decoded))
}
