// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the single configuration struct the RaaS core is
// constructed with (spec §6), following the teacher's Config/Builder/preset
// layering (config/builder.go, config/presets.go in the upstream consensus
// module this package is adapted from).
package config

import (
	"time"

	"github.com/qres/raas-core/rerrors"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	// ModelDim is the agreed-at-bootstrap dimension of the model vector.
	ModelDim int `json:"modelDim"`

	// InitialTrust (R0) is the starting reputation for a newly observed peer.
	InitialTrust int32 `json:"initialTrust"`

	// BanThreshold (tau_ban) is the reputation below which a peer is banned.
	BanThreshold int32 `json:"banThreshold"`

	// VoteThreshold (tau_vote) is the minimum reputation to count a regime vote.
	VoteThreshold int32 `json:"voteThreshold"`

	// QuorumMin (Q_min) is the number of trusted confirmations required for Storm.
	QuorumMin int `json:"quorumMin"`

	// VoteWindow (W_vote) is the age in rounds at which a vote expires.
	VoteWindow uint64 `json:"voteWindow"`

	// AuditInterval is the base cadence, in rounds, for audits.
	AuditInterval uint64 `json:"auditInterval"`

	// AuditRate is the fraction of active peers audited per interval.
	AuditRate float64 `json:"auditRate"`

	// AuditEntropyFloor suppresses audits below this entropy, in Q16.16.
	AuditEntropyFloor int32 `json:"auditEntropyFloor"`

	// AuditTolerance is the allowed L2 distance in verification, Q16.16 units.
	AuditTolerance int32 `json:"auditTolerance"`

	// AuditConvictionFailures / AuditConvictionWindow define the ban rule:
	// N failures within W rounds bans the peer.
	AuditConvictionFailures int    `json:"auditConvictionFailures"`
	AuditConvictionWindow   uint64 `json:"auditConvictionWindow"`

	// Hysteresis confirmation counts for regime transitions (spec §4.3).
	// Each transition direction has its own independently configurable
	// count, even where two happen to share a value today.
	HysteresisCalmToPre   int `json:"hysteresisCalmToPre"`
	HysteresisPreToStorm  int `json:"hysteresisPreToStorm"`
	HysteresisPreToCalm   int `json:"hysteresisPreToCalm"`
	HysteresisStormToCalm int `json:"hysteresisStormToCalm"`

	// TMaxRounds is the liveness fallback budget (INV-7).
	TMaxRounds uint64 `json:"tMaxRounds"`

	// EnergyCritical / EnergyGossipFloor are percentages (0-100) of pool
	// capacity below which Storm is clamped to Calm, resp. cures are blocked.
	EnergyCritical    int `json:"energyCritical"`
	EnergyGossipFloor int `json:"energyGossipFloor"`

	// MTU is the network fragment ceiling in bytes.
	MTU int `json:"mtu"`

	// Scheduler base intervals by regime (spec §4.6 TWT).
	BaseIntervalCalm     time.Duration `json:"baseIntervalCalm"`
	BaseIntervalPreStorm time.Duration `json:"baseIntervalPreStorm"`
	BaseIntervalStorm    time.Duration `json:"baseIntervalStorm"`

	// Regime entropy thresholds (theta1, theta2, theta3), Q16.16 units.
	ThetaDerivative int32 `json:"thetaDerivative"`
	ThetaStormEnter int32 `json:"thetaStormEnter"`
	ThetaStormExit  int32 `json:"thetaStormExit"`

	// Gossip cure thresholds (theta_cure, theta_improve), Q16.16 units.
	ThetaCure    int32 `json:"thetaCure"`
	ThetaImprove int32 `json:"thetaImprove"`

	// GossipQueueCapacity bounds the pending-outbound priority queue.
	GossipQueueCapacity int `json:"gossipQueueCapacity"`

	// ReassemblyTimeout bounds how long a partial fragment set is retained.
	ReassemblyTimeout time.Duration `json:"reassemblyTimeout"`

	// ChallengeDeadline bounds an outstanding audit challenge.
	ChallengeDeadline time.Duration `json:"challengeDeadline"`
}

// Validate checks the structural invariants a Config must hold before it is
// handed to swarm.NewNode. It never mutates the receiver.
func (c *Config) Validate() error {
	switch {
	case c.ModelDim <= 0:
		return rerrors.ErrProtocol
	case c.QuorumMin < 1:
		return rerrors.ErrNoQuorum
	case c.MTU < 64:
		return rerrors.ErrProtocol
	case c.EnergyCritical < 0 || c.EnergyCritical > 100:
		return rerrors.ErrInsufficientEnergy
	case c.EnergyGossipFloor < c.EnergyCritical:
		return rerrors.ErrInsufficientEnergy
	}
	return nil
}
