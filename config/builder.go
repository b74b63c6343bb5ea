// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "time"

// Builder provides a fluent interface for constructing a Config, mirroring
// the upstream consensus module's config.Builder (NewBuilder()...FromPreset(...)).
type Builder struct {
	config *Config
}

// NewBuilder returns a Builder seeded with the spec.md §6 defaults
// ("v20.0.1 Adaptive Defense").
func NewBuilder() *Builder {
	return &Builder{
		config: &Config{
			ModelDim:                 16,
			InitialTrust:             32768, // 0.5 in Q16.16
			BanThreshold:             13107, // 0.2
			VoteThreshold:            52429, // 0.8
			QuorumMin:                3,
			VoteWindow:               10,
			AuditInterval:            50,
			AuditRate:                0.02,
			AuditEntropyFloor:        19661, // 0.3
			AuditTolerance:           655,   // ~0.01
			AuditConvictionFailures:  2,
			AuditConvictionWindow:    50,
			HysteresisCalmToPre:      2,
			HysteresisPreToStorm:     3,
			HysteresisPreToCalm:      2,
			HysteresisStormToCalm:    5,
			TMaxRounds:               150,
			EnergyCritical:           10,
			EnergyGossipFloor:        15,
			MTU:                      1400,
			BaseIntervalCalm:         4 * time.Hour,
			BaseIntervalPreStorm:     10 * time.Minute,
			BaseIntervalStorm:        30 * time.Second,
			ThetaDerivative:          9830,  // 0.15
			ThetaStormEnter:          29491, // 0.45
			ThetaStormExit:           19661, // 0.30
			ThetaCure:                1311,  // 0.02
			ThetaImprove:             3277,  // 0.05
			GossipQueueCapacity:      256,
			ReassemblyTimeout:        30 * time.Second,
			ChallengeDeadline:        10 * time.Second,
		},
	}
}

// WithModelDim sets the model vector dimension agreed at swarm bootstrap.
func (b *Builder) WithModelDim(d int) *Builder {
	b.config.ModelDim = d
	return b
}

// WithInitialTrust overrides R0.
func (b *Builder) WithInitialTrust(q1616 int32) *Builder {
	b.config.InitialTrust = q1616
	return b
}

// WithQuorumMin overrides Q_min.
func (b *Builder) WithQuorumMin(n int) *Builder {
	b.config.QuorumMin = n
	return b
}

// WithTMaxRounds overrides the liveness fallback budget.
func (b *Builder) WithTMaxRounds(n uint64) *Builder {
	b.config.TMaxRounds = n
	return b
}

// Build finalizes the Config, validating it before returning.
func (b *Builder) Build() (Config, error) {
	if err := b.config.Validate(); err != nil {
		return Config{}, err
	}
	return *b.config, nil
}
