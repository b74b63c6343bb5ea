// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package regime

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/qres/raas-core/fixedpoint"
)

func testConfig() Config {
	return Config{
		VoteThreshold:         fixedpoint.FromFloat64(0.8),
		QuorumMin:             2,
		VoteWindow:            10,
		ThetaDerivative:       fixedpoint.FromFloat64(0.15),
		ThetaStormEnter:       fixedpoint.FromFloat64(0.45),
		ThetaStormExit:        fixedpoint.FromFloat64(0.30),
		HysteresisCalmToPre:   2,
		HysteresisPreToStorm:  3,
		HysteresisPreToCalm:   2,
		HysteresisStormToCalm: 5,
		EnergyCritical:        10,
		TMaxRounds:            50,
	}
}

func mkVoter(b byte) PeerID {
	var id ids.ID
	id[0] = b
	return id
}

func TestStartsCalm(t *testing.T) {
	d := NewDetector(testConfig())
	require.Equal(t, Calm, d.State())
}

func TestCalmToPreStormRequiresConsecutiveConfirmations(t *testing.T) {
	d := NewDetector(testConfig())
	// Feed a rising entropy trend so the derivative stays above theta.
	samples := []float64{0.1, 0.2, 0.4, 0.6, 0.8, 1.0}
	for i, s := range samples {
		d.Observe(fixedpoint.FromFloat64(s))
		regime := d.Step(uint64(i), 100)
		if i < 3 {
			require.Equal(t, Calm, regime, "round %d: should not transition before enough history/confirmations", i)
		}
	}
	require.Equal(t, PreStorm, d.State())
}

func TestSingleDissentingRoundResetsStreak(t *testing.T) {
	d := NewDetector(testConfig())

	// First confirming round: derivative above theta.
	d.haveDeriv = true
	d.derivative = fixedpoint.FromFloat64(0.5)
	d.Step(0, 100)
	require.Equal(t, Calm, d.State())
	require.Equal(t, 1, d.streak)
	require.Equal(t, PreStorm, d.pendingTarget)

	// A dissenting round (derivative drops back at or below theta) must
	// reset the streak rather than carry it toward commit.
	d.derivative = fixedpoint.FromFloat64(0.01)
	d.Step(1, 100)
	require.Equal(t, Calm, d.State())
	require.Equal(t, 0, d.streak)
	require.Equal(t, Calm, d.pendingTarget)
}

func TestStormEntryBlockedWithoutQuorum(t *testing.T) {
	d := NewDetector(testConfig())
	// Drive into PreStorm first.
	samples := []float64{0.1, 0.3, 0.6, 0.9, 1.0, 1.0, 1.0, 1.0}
	for i, s := range samples {
		d.Observe(fixedpoint.FromFloat64(s))
		d.Step(uint64(i), 100)
	}
	require.Equal(t, PreStorm, d.State())

	// Without quorum votes, high entropy alone must never commit Storm.
	for i := 8; i < 30; i++ {
		d.Observe(fixedpoint.FromFloat64(1.0))
		d.Step(uint64(i), 100)
		require.NotEqual(t, Storm, d.State())
	}
}

func TestStormEntryWithQuorum(t *testing.T) {
	d := NewDetector(testConfig())
	samples := []float64{0.1, 0.3, 0.6, 0.9, 1.0, 1.0, 1.0, 1.0}
	var round uint64
	for _, s := range samples {
		d.Observe(fixedpoint.FromFloat64(s))
		d.Step(round, 100)
		round++
	}
	require.Equal(t, PreStorm, d.State())

	d.AddVote(Vote{Voter: mkVoter(1), Round: round, VoterReputation: fixedpoint.FromFloat64(0.9)})
	d.AddVote(Vote{Voter: mkVoter(2), Round: round, VoterReputation: fixedpoint.FromFloat64(0.85)})

	var state Regime
	for i := 0; i < 5; i++ {
		d.Observe(fixedpoint.FromFloat64(1.0))
		state = d.Step(round, 100)
		round++
	}
	require.Equal(t, Storm, state)
}

func TestQuorumIgnoresLowReputationVotes(t *testing.T) {
	d := NewDetector(testConfig())
	samples := []float64{0.1, 0.3, 0.6, 0.9, 1.0, 1.0, 1.0, 1.0}
	var round uint64
	for _, s := range samples {
		d.Observe(fixedpoint.FromFloat64(s))
		d.Step(round, 100)
		round++
	}
	d.AddVote(Vote{Voter: mkVoter(1), Round: round, VoterReputation: fixedpoint.FromFloat64(0.5)})
	d.AddVote(Vote{Voter: mkVoter(2), Round: round, VoterReputation: fixedpoint.FromFloat64(0.5)})

	for i := 0; i < 10; i++ {
		d.Observe(fixedpoint.FromFloat64(1.0))
		state := d.Step(round, 100)
		require.NotEqual(t, Storm, state)
		round++
	}
}

func TestEnergyOverrideClampsToCalm(t *testing.T) {
	d := NewDetector(testConfig())
	samples := []float64{0.1, 0.3, 0.6, 0.9, 1.0, 1.0, 1.0, 1.0}
	var round uint64
	for _, s := range samples {
		d.Observe(fixedpoint.FromFloat64(s))
		d.Step(round, 100)
		round++
	}
	require.Equal(t, PreStorm, d.State())

	d.AddVote(Vote{Voter: mkVoter(1), Round: round, VoterReputation: fixedpoint.FromFloat64(0.9)})
	d.AddVote(Vote{Voter: mkVoter(2), Round: round, VoterReputation: fixedpoint.FromFloat64(0.9)})

	// Under critical energy, Storm must never be entered, and the PreStorm
	// climb should reverse back toward Calm instead.
	for i := 0; i < 10; i++ {
		d.Observe(fixedpoint.FromFloat64(1.0))
		state := d.Step(round, 5) // energyPercent=5 < EnergyCritical=10
		require.NotEqual(t, Storm, state)
		round++
	}
	require.Equal(t, Calm, d.State())
}

func TestStormToCalmRequiresFiveConfirmations(t *testing.T) {
	cfg := testConfig()
	d := NewDetector(cfg)
	d.state = Storm
	d.pendingTarget = Storm

	for i := 0; i < 4; i++ {
		d.Observe(fixedpoint.FromFloat64(0.1)) // below theta_storm_exit
		state := d.Step(uint64(i), 100)
		require.Equal(t, Storm, state, "round %d: should not exit before 5 confirmations", i)
	}
	d.Observe(fixedpoint.FromFloat64(0.1))
	state := d.Step(4, 100)
	require.Equal(t, Calm, state)
}

func TestLivenessExceeded(t *testing.T) {
	d := NewDetector(testConfig())
	require.False(t, d.LivenessExceeded(49))
	require.True(t, d.LivenessExceeded(50))
	require.True(t, d.LivenessExceeded(1000))
}

func TestResetRestoresInitialState(t *testing.T) {
	d := NewDetector(testConfig())
	d.state = Storm
	d.streak = 3
	d.AddVote(Vote{Voter: mkVoter(1), Round: 5, VoterReputation: fixedpoint.FromFloat64(0.9)})

	d.Reset()
	require.Equal(t, Calm, d.State())
	require.Equal(t, 0, d.streak)
	require.Empty(t, d.votes)
}
