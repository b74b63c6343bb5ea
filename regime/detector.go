// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package regime implements the adaptive regime detector of spec.md §4.3:
// a quorum-gated hysteresis state machine over Calm/PreStorm/Storm. It is
// grounded on the teacher's confidence package (confidence/unary.go,
// confidence/termination.go): the same preference-strength-counter-with-
// termination-condition idiom that drives nnary/unary/binary consensus
// there drives the asymmetric Calm/PreStorm/Storm hysteresis here.
package regime

import (
	"github.com/luxfi/ids"

	"github.com/qres/raas-core/fixedpoint"
)

// Regime is one of the three discrete states of spec.md §4.3.
type Regime int

const (
	Calm Regime = iota
	PreStorm
	Storm
)

func (r Regime) String() string {
	switch r {
	case PreStorm:
		return "pre-storm"
	case Storm:
		return "storm"
	default:
		return "calm"
	}
}

// PeerID matches the swarm-wide 32-byte identifier.
type PeerID = ids.ID

// Vote is the spec §3 RegimeVote: only counted toward the quorum gate if
// the voter's reputation at vote time was >= tau_vote, and only while
// unexpired.
type Vote struct {
	Voter             PeerID
	Round             uint64
	EntropyDerivative fixedpoint.Q16_16
	VoterReputation   fixedpoint.Q16_16
}

// Config is the subset of config.Config the detector needs. Declared
// locally (rather than importing the config package) to keep regime free
// of a dependency cycle with swarm, matching the teacher's pattern of
// small per-package parameter structs (confidence.TerminationCondition).
type Config struct {
	VoteThreshold         fixedpoint.Q16_16
	QuorumMin             int
	VoteWindow            uint64
	ThetaDerivative       fixedpoint.Q16_16
	ThetaStormEnter       fixedpoint.Q16_16
	ThetaStormExit        fixedpoint.Q16_16
	HysteresisCalmToPre   int
	HysteresisPreToStorm  int
	HysteresisPreToCalm   int
	HysteresisStormToCalm int
	EnergyCritical        int
	TMaxRounds            uint64
}

// Detector is the per-node regime state machine. It owns no shared
// mutable state: one Detector per node (spec §5 / §9 "owned SwarmState").
type Detector struct {
	cfg Config

	state         Regime
	pendingTarget Regime
	streak        int

	raw          [3]fixedpoint.Q16_16
	rawCount     int
	smoothed     [3]fixedpoint.Q16_16
	smoothedN    int
	lastRaw      fixedpoint.Q16_16
	derivative   fixedpoint.Q16_16
	haveDeriv    bool

	votes []Vote
}

// NewDetector constructs a Detector in the initial Calm state (spec §4.3).
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, state: Calm, pendingTarget: Calm}
}

// State returns the currently committed regime.
func (d *Detector) State() Regime { return d.state }

// LastObserved returns the most recent raw entropy sample passed to
// Observe, or zero if Observe has never been called.
func (d *Detector) LastObserved() fixedpoint.Q16_16 { return d.lastRaw }

// Observe pushes one local entropy estimate (spec §4.3: |actual-predicted|
// / range, already computed by the caller's Predictor/Sensor pair) and
// updates the 3-point moving average and its two-round derivative.
func (d *Detector) Observe(rawEntropy fixedpoint.Q16_16) {
	d.lastRaw = rawEntropy

	d.raw[0], d.raw[1], d.raw[2] = d.raw[1], d.raw[2], rawEntropy
	if d.rawCount < 3 {
		d.rawCount++
	}
	n := d.rawCount
	start := 3 - n
	var sum fixedpoint.Q16_16
	for i := start; i < 3; i++ {
		sum = fixedpoint.Add(sum, d.raw[i])
	}
	smoothed := fixedpoint.Div(sum, fixedpoint.FromInt(int32(n)))

	d.smoothed[0], d.smoothed[1], d.smoothed[2] = d.smoothed[1], d.smoothed[2], smoothed
	if d.smoothedN < 3 {
		d.smoothedN++
	}
	if d.smoothedN == 3 {
		d.derivative = fixedpoint.Sub(d.smoothed[2], d.smoothed[0])
		d.haveDeriv = true
	}
}

// AddVote records a RegimeVote for quorum-gate evaluation.
func (d *Detector) AddVote(v Vote) {
	d.votes = append(d.votes, v)
}

// pruneVotes drops votes that have expired (age > VoteWindow) as of round.
// Votes below tau_vote are kept here and skipped by quorumPasses.
func (d *Detector) pruneVotes(round uint64) {
	kept := d.votes[:0]
	for _, v := range d.votes {
		if round >= v.Round && round-v.Round > d.cfg.VoteWindow {
			continue
		}
		kept = append(kept, v)
	}
	d.votes = kept
}

// quorumPasses implements the INV-4 quorum gate: at least QuorumMin
// unexpired votes from peers with reputation >= tau_vote.
func (d *Detector) quorumPasses(round uint64) bool {
	d.pruneVotes(round)
	n := 0
	for _, v := range d.votes {
		if v.VoterReputation >= d.cfg.VoteThreshold {
			n++
		}
	}
	return n >= d.cfg.QuorumMin
}

// desired computes the signal-driven next-regime candidate (spec §4.3's
// transition table), before the energy override.
func (d *Detector) desired(round uint64) Regime {
	derivative := d.derivative
	if !d.haveDeriv {
		derivative = 0
	}

	switch d.state {
	case Calm:
		if derivative > d.cfg.ThetaDerivative {
			return PreStorm
		}
		return Calm
	case PreStorm:
		if d.lastRaw > d.cfg.ThetaStormEnter && d.quorumPasses(round) {
			return Storm
		}
		if derivative <= 0 {
			return Calm
		}
		return PreStorm
	default: // Storm
		if d.lastRaw < d.cfg.ThetaStormExit {
			return Calm
		}
		return Storm
	}
}

// requiredConfirmations returns the hysteresis confirmation count for the
// transition from d.state to target, or 0 if target == d.state (no
// transition in progress).
func (d *Detector) requiredConfirmations(target Regime) int {
	switch {
	case d.state == Calm && target == PreStorm:
		return d.cfg.HysteresisCalmToPre
	case d.state == PreStorm && target == Storm:
		return d.cfg.HysteresisPreToStorm
	case d.state == PreStorm && target == Calm:
		return d.cfg.HysteresisPreToCalm
	case d.state == Storm && target == Calm:
		return d.cfg.HysteresisStormToCalm
	default:
		return 0
	}
}

// Step advances the detector by one round given the current energy
// reserve as a percentage of capacity, and returns the committed regime
// after this round (which may be unchanged). round is the caller's
// logical round counter, used for vote expiry and the nonce-free quorum
// check.
func (d *Detector) Step(round uint64, energyPercent int) Regime {
	target := d.desired(round)

	// INV-5 energy override: under critical energy, the desired regime is
	// forcibly clamped to Calm, so Storm can never be entered and any
	// in-progress climb reverses.
	if energyPercent < d.cfg.EnergyCritical {
		target = Calm
	}

	if target == d.state {
		d.streak = 0
		d.pendingTarget = d.state
		return d.state
	}

	if target == d.pendingTarget {
		d.streak++
	} else {
		d.pendingTarget = target
		d.streak = 1
	}

	required := d.requiredConfirmations(target)
	if required > 0 && d.streak >= required {
		d.state = target
		d.streak = 0
		d.pendingTarget = d.state
	}

	return d.state
}

// LivenessExceeded implements INV-7: the caller has observed no
// successful aggregation round for noProgressRounds rounds.
func (d *Detector) LivenessExceeded(noProgressRounds uint64) bool {
	return d.cfg.TMaxRounds > 0 && noProgressRounds >= d.cfg.TMaxRounds
}

// Reset restores the detector to its initial Calm state, discarding all
// hysteresis and vote bookkeeping — the detector-state half of the INV-7
// liveness fallback (the other half, rolling the model back, is the
// ModelStore's responsibility and is orchestrated by swarm.Node).
func (d *Detector) Reset() {
	*d = Detector{cfg: d.cfg, state: Calm, pendingTarget: Calm}
}
