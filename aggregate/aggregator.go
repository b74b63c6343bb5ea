// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package aggregate implements the reputation-weighted Byzantine-tolerant
// aggregator of spec.md §4.2. Aggregate is a pure function of its inputs
// (spec §4.2's determinism contract): same inputs, same ModelDelta, on any
// platform. It is grounded on the teacher's confidence/poll termination-
// condition idiom (confidence/unary.go, confidence/termination.go) and its
// weighted-sampling package (utils/sampler/weighted.go), generalized from a
// single preferred choice to a coordinate-wise trimmed mean.
package aggregate

import (
	"math"
	"sort"

	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/reputation"
	"github.com/qres/raas-core/wire"
)

// Mode is the aggregator's adaptive decision of spec §4.2.
type Mode int

const (
	// ColdStart uses coordinate-wise weighted trimmed mean.
	ColdStart Mode = iota
	// Mature uses the reputation-weighted mean with no trimming.
	Mature
)

func (m Mode) String() string {
	if m == Mature {
		return "mature"
	}
	return "cold-start"
}

// Penalty is a reputation delta the caller must apply to Peer after this
// round, since Aggregate itself never mutates the ReputationTable (it is a
// pure function, per spec §4.2).
type Penalty struct {
	Peer   wire.PeerID
	Delta  fixedpoint.Q16_16
	Reason string
}

// Result is the aggregator's output.
type Result struct {
	Delta     fixedpoint.Vector
	Mode      Mode
	Penalties []Penalty
	// Warning is set when the input set was empty or every input was
	// rejected or banned, per spec §4.2's empty-input boundary case.
	Warning bool
}

// Input bundles one sender's authenticated update with its current
// reputation, so Aggregate need not take a live *reputation.Table (keeping
// it a pure function over value inputs).
type Input struct {
	Update wire.GhostUpdate
	Score  fixedpoint.Q16_16
	Banned bool
}

// DecideMode selects cold-start vs. mature mode (spec §4.2): cold-start
// when bannedCount < 3 OR the 20-round ban rate exceeds 1%; mature only
// when both conditions fail.
func DecideMode(bannedCount int, recentBanRate float64) Mode {
	if bannedCount < 3 || recentBanRate > 0.01 {
		return ColdStart
	}
	return Mature
}

// Aggregate implements aggregate(updates, reputations, regime, banned_count,
// n_total) -> ModelDelta (spec §4.2). modelDim is the agreed model
// dimension. observedByzantineFraction is the caller's rolling estimate of
// the fraction of active peers believed Byzantine — spec §4.2 names this
// quantity without fixing how it is produced; this repo tracks it as an
// exponential moving average of the per-round penalized fraction, owned by
// swarm.Node and passed in here so Aggregate remains a pure function of
// value inputs (see DESIGN.md).
func Aggregate(inputs []Input, modelDim int, bannedCount, nTotal int, recentBanRate, observedByzantineFraction float64) Result {
	mode := DecideMode(bannedCount, recentBanRate)

	// Sort inputs by (round, PeerID) first, establishing the deterministic
	// processing order the core's determinism contract requires (spec §5):
	// two honest nodes that observe the same set in the same round compute
	// bit-identical results regardless of arrival order.
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Update.Round != sorted[j].Update.Round {
			return sorted[i].Update.Round < sorted[j].Update.Round
		}
		return lessPeerID(sorted[i].Update.Sender, sorted[j].Update.Sender)
	})

	var penalties []Penalty
	type admitted struct {
		vec    fixedpoint.Vector
		weight fixedpoint.Q16_16
		peer   wire.PeerID
	}
	admittedEntries := make([]admitted, 0, len(sorted))

	// The influence exponent is adaptive on the swarm's active population
	// (spec §4.2/§4.5), not on the size of this round's input set.
	nActiveSwarm := nTotal - bannedCount
	if nActiveSwarm < 0 {
		nActiveSwarm = 0
	}
	exponent := reputation.InfluenceExponent(nActiveSwarm)

	for _, in := range sorted {
		u := in.Update
		if in.Banned {
			continue
		}
		if u.Delta.IsSentinel() {
			penalties = append(penalties, Penalty{Peer: u.Sender, Delta: reputation.DeltaCryptoFailure, Reason: "zkp-failure: illegal bfp16 exponent"})
			continue
		}
		if len(u.Delta.Mantissas) != modelDim {
			penalties = append(penalties, Penalty{Peer: u.Sender, Delta: reputation.DeltaDriftPenalty, Reason: "drift: dimension mismatch"})
			continue
		}
		weight := reputation.Influence(in.Score, exponent)
		admittedEntries = append(admittedEntries, admitted{
			vec:    u.Delta.ToVector(),
			weight: weight,
			peer:   u.Sender,
		})
	}

	nAdmitted := len(admittedEntries)
	if nAdmitted == 0 {
		return Result{Delta: fixedpoint.ZeroVector(modelDim), Mode: mode, Penalties: penalties, Warning: true}
	}

	f := 0
	if mode == ColdStart {
		f = trimCount(nAdmitted, observedByzantineFraction)
	}

	delta := make(fixedpoint.Vector, modelDim)
	type coordEntry struct {
		value  fixedpoint.Q16_16
		weight fixedpoint.Q16_16
		peer   wire.PeerID
	}
	entries := make([]coordEntry, nAdmitted)
	for d := 0; d < modelDim; d++ {
		for i, a := range admittedEntries {
			entries[i] = coordEntry{value: a.vec[d], weight: a.weight, peer: a.peer}
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].value != entries[j].value {
				return entries[i].value < entries[j].value
			}
			return lessPeerID(entries[i].peer, entries[j].peer)
		})

		lo, hi := f, len(entries)-f
		if lo > hi {
			lo, hi = len(entries), len(entries)
		}
		remainder := entries[lo:hi]

		var weightSum fixedpoint.Q16_16
		var weightedSum fixedpoint.Q16_16
		for _, e := range remainder {
			weightedSum = fixedpoint.Add(weightedSum, fixedpoint.Mul(e.value, e.weight))
			weightSum = fixedpoint.Add(weightSum, e.weight)
		}
		if weightSum == 0 {
			delta[d] = 0
			continue
		}
		delta[d] = fixedpoint.Div(weightedSum, weightSum)
	}

	return Result{Delta: delta, Mode: mode, Penalties: penalties}
}

// trimCount computes f = min(maxF, ceil(observed_byzantine_fraction *
// n_active)), never exceeding n_active/3 (spec §4.2). maxF is floor(n_active
// / 3): a ceiling cap would let f exceed a third of the set at every size
// (n=10 would permit trimming 4, n=4 would permit trimming 2 of 4), which
// the spec's "never exceeding n_active/3" bound forbids. The one exception is
// the tiny-n boundary of spec §8 — "inbox of size 1 or 2 in cold-start mode
// with f >= 1" — where floor(n_active/3) is 0 and would make trimming
// structurally impossible; there, and only there, maxF is raised to 1.
func trimCount(nActive int, observedByzantineFraction float64) int {
	if nActive <= 0 {
		return 0
	}
	maxF := nActive / 3
	if maxF == 0 {
		maxF = 1
	}
	observedF := int(math.Ceil(observedByzantineFraction * float64(nActive)))
	if observedF < 0 {
		observedF = 0
	}
	if observedF > maxF {
		return maxF
	}
	return observedF
}

func lessPeerID(a, b wire.PeerID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
