// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/qres/raas-core/fixedpoint"
)

// ghostUpdateFixedLen is the length of everything in a GhostUpdate frame
// except the variable-length mantissa block: 32 (sender) + 8 (round) +
// 1 (exponent) + 4 (residual) + 4 (accuracy) + 64 (signature).
const ghostUpdateFixedLen = 32 + 8 + 1 + 4 + 4 + SignatureSize

// EncodeGhostUpdate serializes u per spec §6's bit-exact layout.
func EncodeGhostUpdate(u GhostUpdate) []byte {
	dim := len(u.Delta.Mantissas)
	buf := make([]byte, ghostUpdateFixedLen+dim*2)
	encodeGhostUpdateBody(buf, u)
	return buf
}

// SigningBytesGhostUpdate returns every byte preceding the signature field,
// the message the Ed25519 signature is computed over.
func SigningBytesGhostUpdate(u GhostUpdate) []byte {
	full := EncodeGhostUpdate(u)
	return full[:len(full)-SignatureSize]
}

func encodeGhostUpdateBody(buf []byte, u GhostUpdate) {
	off := 0
	copy(buf[off:off+32], u.Sender[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:off+8], u.Round)
	off += 8
	for _, m := range u.Delta.Mantissas {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(m))
		off += 2
	}
	buf[off] = byte(u.Delta.Exponent)
	off++
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(u.ResidualError))
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(u.AccuracyDelta))
	off += 4
	copy(buf[off:off+SignatureSize], u.Signature[:])
}

// DecodeGhostUpdate parses a frame of the announced dimension dim. A frame
// of the wrong length is a ProtocolError, surfaced to the caller so the
// sender can be penalized (spec §4.2 failure semantics).
func DecodeGhostUpdate(data []byte, dim int) (GhostUpdate, error) {
	want := ghostUpdateFixedLen + dim*2
	if len(data) != want {
		return GhostUpdate{}, fmt.Errorf("ghost update: want %d bytes, got %d", want, len(data))
	}

	var u GhostUpdate
	off := 0
	sender, err := ids.ToID(data[off : off+32])
	if err != nil {
		return GhostUpdate{}, fmt.Errorf("ghost update: sender: %w", err)
	}
	u.Sender = sender
	off += 32

	u.Round = binary.BigEndian.Uint64(data[off : off+8])
	off += 8

	mantissas := make([]int16, dim)
	for i := 0; i < dim; i++ {
		mantissas[i] = int16(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
	}

	exponent := int8(data[off])
	off++

	u.Delta = fixedpoint.Bfp16Vec{Exponent: exponent, Mantissas: mantissas}

	u.ResidualError = fixedpoint.Q16_16(int32(binary.BigEndian.Uint32(data[off : off+4])))
	off += 4
	u.AccuracyDelta = fixedpoint.Q16_16(int32(binary.BigEndian.Uint32(data[off : off+4])))
	off += 4

	copy(u.Signature[:], data[off:off+SignatureSize])

	return u, nil
}

// auditChallengeLen is the fixed frame length of an AuditChallenge:
// 32 (auditor) + 32 (target) + 8 (round) + 32 (nonce) + 8 (timestamp) + 64 (signature).
const auditChallengeLen = 32 + 32 + 8 + NonceSize + 8 + SignatureSize

// EncodeAuditChallenge serializes c per the same framing discipline as
// GhostUpdate (spec §6).
func EncodeAuditChallenge(c AuditChallenge) []byte {
	buf := make([]byte, auditChallengeLen)
	off := 0
	copy(buf[off:off+32], c.Auditor[:])
	off += 32
	copy(buf[off:off+32], c.Target[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:off+8], c.Round)
	off += 8
	copy(buf[off:off+NonceSize], c.Nonce[:])
	off += NonceSize
	binary.BigEndian.PutUint64(buf[off:off+8], c.Timestamp)
	off += 8
	copy(buf[off:off+SignatureSize], c.Signature[:])
	return buf
}

// SigningBytesAuditChallenge returns every byte preceding the signature.
func SigningBytesAuditChallenge(c AuditChallenge) []byte {
	full := EncodeAuditChallenge(c)
	return full[:len(full)-SignatureSize]
}

// DecodeAuditChallenge parses a fixed-length AuditChallenge frame.
func DecodeAuditChallenge(data []byte) (AuditChallenge, error) {
	if len(data) != auditChallengeLen {
		return AuditChallenge{}, fmt.Errorf("audit challenge: want %d bytes, got %d", auditChallengeLen, len(data))
	}
	var c AuditChallenge
	off := 0
	auditor, err := ids.ToID(data[off : off+32])
	if err != nil {
		return AuditChallenge{}, err
	}
	c.Auditor = auditor
	off += 32
	target, err := ids.ToID(data[off : off+32])
	if err != nil {
		return AuditChallenge{}, err
	}
	c.Target = target
	off += 32
	c.Round = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	copy(c.Nonce[:], data[off:off+NonceSize])
	off += NonceSize
	c.Timestamp = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	copy(c.Signature[:], data[off:off+SignatureSize])
	return c, nil
}

// auditResponseFixedLen is the length of an AuditResponse excluding its two
// variable-length Q16.16 vectors: 32 (data hash) + 32 (nonce) + 64 (signature).
const auditResponseFixedLen = 32 + NonceSize + SignatureSize

// EncodeAuditResponse serializes r for a model of dimension dim.
func EncodeAuditResponse(r AuditResponse) []byte {
	dim := len(r.Prediction)
	buf := make([]byte, auditResponseFixedLen+dim*8)
	off := 0
	for _, v := range r.Prediction {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
		off += 4
	}
	for _, v := range r.ClaimedGradient {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
		off += 4
	}
	copy(buf[off:off+32], r.LocalDataHash[:])
	off += 32
	copy(buf[off:off+NonceSize], r.Nonce[:])
	off += NonceSize
	copy(buf[off:off+SignatureSize], r.Signature[:])
	return buf
}

// SigningBytesAuditResponse returns every byte preceding the signature.
func SigningBytesAuditResponse(r AuditResponse) []byte {
	full := EncodeAuditResponse(r)
	return full[:len(full)-SignatureSize]
}

// DecodeAuditResponse parses an AuditResponse frame for a model of
// dimension dim. A dimension mismatch is a ProtocolError (spec §4.4
// verification failure list).
func DecodeAuditResponse(data []byte, dim int) (AuditResponse, error) {
	want := auditResponseFixedLen + dim*8
	if len(data) != want {
		return AuditResponse{}, fmt.Errorf("audit response: want %d bytes, got %d", want, len(data))
	}
	var r AuditResponse
	off := 0
	r.Prediction = make(fixedpoint.Vector, dim)
	for i := 0; i < dim; i++ {
		r.Prediction[i] = fixedpoint.Q16_16(int32(binary.BigEndian.Uint32(data[off : off+4])))
		off += 4
	}
	r.ClaimedGradient = make(fixedpoint.Vector, dim)
	for i := 0; i < dim; i++ {
		r.ClaimedGradient[i] = fixedpoint.Q16_16(int32(binary.BigEndian.Uint32(data[off : off+4])))
		off += 4
	}
	copy(r.LocalDataHash[:], data[off:off+32])
	off += 32
	copy(r.Nonce[:], data[off:off+NonceSize])
	off += NonceSize
	copy(r.Signature[:], data[off:off+SignatureSize])
	return r, nil
}
