// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reputation implements the per-peer trust table of spec.md §3,
// §4.5. It plays the role the teacher's validators.Set/uptime.Manager pair
// plays for a committee of fixed voting weight: Table.Observe is this
// package's Connect, Table.Apply is its uptime-percentage update, and
// Score/Banned replace validator weight as the aggregator's influence input.
package reputation

import (
	"sort"

	"github.com/luxfi/ids"

	"github.com/qres/raas-core/fixedpoint"
)

// PeerID identifies a peer by the 32-byte derivation of its long-term
// signing key (spec §3). ids.ID is the teacher's universal 32-byte
// identifier type (419 occurrences across the pack); we reuse it rather
// than invent a parallel type.
type PeerID = ids.ID

// Delta constants from spec §4.5.
const (
	DeltaAuditPass     fixedpoint.Q16_16 = 1311 // +0.02
	DeltaDriftPenalty  fixedpoint.Q16_16 = -5243 // -0.08
	DeltaCryptoFailure fixedpoint.Q16_16 = -9830 // -0.15
)

// Entry is the per-peer state: score, last-updated round, and ban state.
type Entry struct {
	Score        fixedpoint.Q16_16
	LastRound    uint64
	Banned       bool
	FirstSeen    uint64
	AuditFailWin []uint64 // rounds of audit failure within the conviction window
}

// Table owns every observed peer's reputation. It is exclusively owned by
// one node (spec §3 ownership); the aggregator and gossip engine read
// atomic snapshots taken at round start (spec §5).
type Table struct {
	initialTrust fixedpoint.Q16_16
	banThreshold fixedpoint.Q16_16
	entries      map[PeerID]*Entry
}

// NewTable constructs an empty Table with the given R0 and tau_ban.
func NewTable(initialTrust, banThreshold fixedpoint.Q16_16) *Table {
	return &Table{
		initialTrust: initialTrust,
		banThreshold: banThreshold,
		entries:      make(map[PeerID]*Entry),
	}
}

// Observe ensures peer has an entry, initializing it to R0 on first sight.
func (t *Table) Observe(peer PeerID, round uint64) *Entry {
	e, ok := t.entries[peer]
	if !ok {
		e = &Entry{Score: t.initialTrust, FirstSeen: round}
		t.entries[peer] = e
	}
	return e
}

// Score returns a peer's current reputation, R0 if never observed.
func (t *Table) Score(peer PeerID) fixedpoint.Q16_16 {
	if e, ok := t.entries[peer]; ok {
		return e.Score
	}
	return t.initialTrust
}

// Banned reports whether peer's score has fallen below tau_ban.
func (t *Table) Banned(peer PeerID) bool {
	e, ok := t.entries[peer]
	return ok && e.Banned
}

// BannedCount returns the number of peers currently banned.
func (t *Table) BannedCount() int {
	n := 0
	for _, e := range t.entries {
		if e.Banned {
			n++
		}
	}
	return n
}

// Len returns the number of observed peers (banned and active).
func (t *Table) Len() int {
	return len(t.entries)
}

// ActiveCount returns the number of non-banned observed peers.
func (t *Table) ActiveCount() int {
	n := 0
	for _, e := range t.entries {
		if !e.Banned {
			n++
		}
	}
	return n
}

// Apply applies an additive delta to peer's score, clamping to [0, 1.0] in
// Q16.16 (spec §4.5), updating the ban flag, and recording the round.
func (t *Table) Apply(peer PeerID, round uint64, delta fixedpoint.Q16_16) *Entry {
	e := t.Observe(peer, round)
	e.Score = fixedpoint.Clamp(fixedpoint.Add(e.Score, delta), 0, fixedpoint.FromInt(1))
	e.LastRound = round
	if e.Score < t.banThreshold {
		e.Banned = true
	}
	return e
}

// Median returns the median of scores in Q16.16, sorting a copy so the
// caller's slice is untouched. The odd-length case returns the middle entry
// exactly; the even-length case averages the two middle entries via
// fixed-point Div, which truncates toward zero.
func Median(scores []fixedpoint.Q16_16) fixedpoint.Q16_16 {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]fixedpoint.Q16_16, len(scores))
	copy(sorted, scores)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return fixedpoint.Div(fixedpoint.Add(sorted[mid-1], sorted[mid]), fixedpoint.FromInt(2))
}

// ApplyEvals folds a batch of peer-submitted evaluation scores for peer into
// a single additive delta via Median before applying it through Apply. This
// is the slander-resistance mechanism spec §4.5 requires: a coordinated
// minority (fewer than a third of the batch) pushing extreme scores cannot
// move the median past the honest majority's value, unlike a raw additive
// sum of every submitted score.
func (t *Table) ApplyEvals(peer PeerID, round uint64, scores []fixedpoint.Q16_16) *Entry {
	if len(scores) == 0 {
		return t.Observe(peer, round)
	}
	return t.Apply(peer, round, Median(scores))
}

// RecordAuditFailure appends round to peer's failure window, pruning
// entries older than window, and returns the count of failures still
// within window (used by the auditor's conviction rule, spec §4.4).
func (t *Table) RecordAuditFailure(peer PeerID, round, window uint64) int {
	e := t.Observe(peer, round)
	e.AuditFailWin = append(e.AuditFailWin, round)
	pruned := e.AuditFailWin[:0]
	for _, r := range e.AuditFailWin {
		if round-r <= window {
			pruned = append(pruned, r)
		}
	}
	e.AuditFailWin = pruned
	return len(pruned)
}

// BanRateOverWindow returns the number of currently banned peers whose
// score was last updated within the most recent `window` rounds, divided by
// the number of rounds in that span; it is used by the aggregator's
// cold-start/mature mode switch (spec §4.2). lastRound is the round
// currently being processed.
func (t *Table) BanRateOverWindow(lastRound uint64, window uint64) float64 {
	if lastRound == 0 || window == 0 {
		return 0
	}
	lo := uint64(0)
	if lastRound > window {
		lo = lastRound - window
	}
	bans := 0
	for _, e := range t.entries {
		if e.Banned && e.LastRound >= lo && e.LastRound <= lastRound {
			bans++
		}
	}
	span := lastRound - lo
	if span == 0 {
		span = 1
	}
	return float64(bans) / float64(span)
}

// Snapshot returns a point-in-time copy of every peer's score and ban
// state, keyed by PeerID. The map has no iteration order; use ActivePeers
// for a deterministic PeerID ordering.
func (t *Table) Snapshot() map[PeerID]Entry {
	out := make(map[PeerID]Entry, len(t.entries))
	for id, e := range t.entries {
		out[id] = *e
	}
	return out
}

// ActivePeers returns, in deterministic PeerID order, every observed peer
// that is not banned.
func (t *Table) ActivePeers() []PeerID {
	ids := make([]PeerID, 0, len(t.entries))
	for id, e := range t.entries {
		if !e.Banned {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return lessID(ids[i], ids[j])
	})
	return ids
}

func lessID(a, b PeerID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Exponent is the swarm-size-adaptive influence exponent of spec §4.2/§4.5:
// a tagged enum over the three legal values, since the exponent is never an
// arbitrary float on the consensus path.
type Exponent int

const (
	Exponent2   Exponent = iota // fewer than 20 active peers
	Exponent3                   // 20-50 active peers
	Exponent3_5                 // more than 50 active peers
)

// InfluenceExponent returns the swarm-size-adaptive exponent used by
// Influence (spec §4.2, §4.5): 2.0 below 20 active peers, 3.0 from 20-50,
// 3.5 above 50.
func InfluenceExponent(nActive int) Exponent {
	switch {
	case nActive < 20:
		return Exponent2
	case nActive <= 50:
		return Exponent3
	default:
		return Exponent3_5
	}
}

// influenceCap is 0.8 in Q16.16, the hard cap on any single peer's weight.
const influenceCap = fixedpoint.Q16_16(52429)

// Influence computes min(R^exponent, 0.8) in Q16.16 using only fixed-point
// arithmetic (spec §4.1 forbids floating point on the consensus path, and
// the aggregator calls this function once per admitted sender).
// R^3.5 is computed as R^3 * sqrt(R).
func Influence(score fixedpoint.Q16_16, exponent Exponent) fixedpoint.Q16_16 {
	r := fixedpoint.Clamp(score, 0, fixedpoint.FromInt(1))
	r2 := fixedpoint.Mul(r, r)
	var w fixedpoint.Q16_16
	switch exponent {
	case Exponent2:
		w = r2
	case Exponent3:
		w = fixedpoint.Mul(r2, r)
	default:
		r3 := fixedpoint.Mul(r2, r)
		w = fixedpoint.Mul(r3, fixedpoint.Sqrt(r))
	}
	return fixedpoint.Min(w, influenceCap)
}
