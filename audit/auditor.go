// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package audit implements the stochastic collision auditor of spec.md
// §4.4: deterministic BLAKE3-seeded target selection, challenge/response
// verification against an L2-distance tolerance, and the conviction/ban
// rule. It is grounded on the teacher's sampler/weighted.go (deterministic
// weighted selection from a seed) and networking/handler/handler.go's
// challenge-response request lifecycle, generalized to the spec's
// whole-swarm BLAKE3 domain-separated seed.
package audit

import (
	"encoding/binary"

	"lukechampine.com/blake3"

	"github.com/qres/raas-core/config"
	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/reputation"
	"github.com/qres/raas-core/wire"
)

// domainTag namespaces the audit seed so it can never collide with a hash
// computed for any other purpose in this system (spec §4.4).
const domainTag = "QRES-CollisionAudit-v21"

// SelectTargets returns the deterministic set of peers to audit this round:
// for i in [0, count), target[i] = activePeers[slotNonce(round, epochHash,
// i) mod len(activePeers)]. Every honest node computes the same set from
// the same (round, epochHash), without coordination (spec §4.4).
func SelectTargets(round uint64, epochHash [32]byte, activePeers []reputation.PeerID, count int) []reputation.PeerID {
	n := len(activePeers)
	if n == 0 || count <= 0 {
		return nil
	}
	if count > n {
		count = n
	}

	seed := seedFor(round, epochHash)
	chosen := make(map[int]bool, count)
	out := make([]reputation.PeerID, 0, count)
	for slot := 0; len(out) < count; slot++ {
		idx := int(slotNonce(seed, uint64(slot)) % uint64(n))
		if chosen[idx] {
			continue
		}
		chosen[idx] = true
		out = append(out, activePeers[idx])
	}
	return out
}

func seedFor(round uint64, epochHash [32]byte) [32]byte {
	buf := make([]byte, 0, len(domainTag)+8+32)
	buf = append(buf, domainTag...)
	var roundBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], round)
	buf = append(buf, roundBytes[:]...)
	buf = append(buf, epochHash[:]...)
	return blake3.Sum256(buf)
}

func slotNonce(seed [32]byte, slot uint64) uint64 {
	buf := make([]byte, 0, 32+8)
	buf = append(buf, seed[:]...)
	var slotBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], slot)
	buf = append(buf, slotBytes[:]...)
	digest := blake3.Sum256(buf)
	return binary.BigEndian.Uint64(digest[:8])
}

// Verdict is the outcome of verifying one AuditResponse.
type Verdict int

const (
	Pass Verdict = iota
	FailTolerance
	FailSignature
	FailTimeout
)

// Verify checks resp against the challenge it answers and the predictor's
// locally recomputed expectation, per spec §4.4: the response must carry a
// valid signature over the matching nonce, and its claimed gradient must be
// within AuditTolerance (L2 distance) of the auditor's own recomputation.
func Verify(cfg config.Config, challenge wire.AuditChallenge, resp wire.AuditResponse, targetPub []byte, recomputedGradient fixedpoint.Vector) Verdict {
	if resp.Nonce != challenge.Nonce {
		return FailSignature
	}
	if !wire.VerifyAuditResponse(targetPub, resp) {
		return FailSignature
	}
	dist := fixedpoint.L2Distance(resp.ClaimedGradient, recomputedGradient)
	if dist > fixedpoint.Q16_16(cfg.AuditTolerance) {
		return FailTolerance
	}
	return Pass
}

// RecordVerdict applies a verdict's reputation consequence and, on the
// second failure within AuditConvictionWindow rounds, bans the peer (spec
// §4.4's conviction rule). It returns true if this verdict caused a ban.
func RecordVerdict(table *reputation.Table, cfg config.Config, peer reputation.PeerID, round uint64, v Verdict) (banned bool) {
	switch v {
	case Pass:
		table.Apply(peer, round, reputation.DeltaAuditPass)
		return false
	default:
		failures := table.RecordAuditFailure(peer, round, cfg.AuditConvictionWindow)
		table.Apply(peer, round, reputation.DeltaCryptoFailure)
		if failures >= cfg.AuditConvictionFailures {
			table.Apply(peer, round, fixedpoint.Neg(fixedpoint.FromInt(1)))
			return true
		}
		return false
	}
}

// ShouldAudit reports whether the swarm should run an audit pass this
// round: only every AuditInterval rounds, and only when recent entropy is
// at or above AuditEntropyFloor — auditing a perfectly calm, converged
// swarm wastes energy for no signal (spec §4.4).
func ShouldAudit(cfg config.Config, round uint64, recentEntropy fixedpoint.Q16_16) bool {
	if cfg.AuditInterval == 0 || round%cfg.AuditInterval != 0 {
		return false
	}
	return recentEntropy >= fixedpoint.Q16_16(cfg.AuditEntropyFloor)
}

// TargetCount returns the number of peers to audit this round given the
// swarm's active population and the configured AuditRate, rounding down
// but always auditing at least one peer when the swarm is non-empty.
func TargetCount(nActive int, auditRate float64) int {
	if nActive <= 0 {
		return 0
	}
	n := int(float64(nActive) * auditRate)
	if n < 1 {
		n = 1
	}
	if n > nActive {
		n = nActive
	}
	return n
}
