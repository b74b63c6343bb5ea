// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "time"

// PresetNames returns all available preset names, mirroring the upstream
// consensus module's config.PresetNames().
func PresetNames() []string {
	return []string{"mainnet", "testnet", "local"}
}

// Mainnet returns the spec.md §6 reference defaults.
func Mainnet(modelDim int) (Config, error) {
	return NewBuilder().WithModelDim(modelDim).Build()
}

// Testnet shortens the audit interval, the liveness budget, the vote window
// and the scheduler base intervals for faster iteration. Hysteresis counts
// and the reputation/energy thresholds that the invariants in spec.md §8
// are stated against keep their Mainnet values.
func Testnet(modelDim int) (Config, error) {
	b := NewBuilder().WithModelDim(modelDim)
	b.config.AuditInterval = 10
	b.config.TMaxRounds = 30
	b.config.VoteWindow = 5
	b.config.BaseIntervalCalm = 2 * time.Minute
	b.config.BaseIntervalPreStorm = 10 * time.Second
	b.config.BaseIntervalStorm = 1 * time.Second
	return b.Build()
}

// Local collapses the audit interval, liveness budget, vote window and
// hysteresis counts to single-digit rounds, for unit tests that want to
// observe a full regime transition or liveness rollback quickly. The audit
// conviction window keeps its Mainnet value.
func Local(modelDim int) (Config, error) {
	b := NewBuilder().WithModelDim(modelDim)
	b.config.AuditInterval = 3
	b.config.TMaxRounds = 6
	b.config.VoteWindow = 3
	b.config.HysteresisCalmToPre = 1
	b.config.HysteresisPreToStorm = 1
	b.config.HysteresisPreToCalm = 1
	b.config.HysteresisStormToCalm = 1
	b.config.BaseIntervalCalm = time.Second
	b.config.BaseIntervalPreStorm = 200 * time.Millisecond
	b.config.BaseIntervalStorm = 50 * time.Millisecond
	b.config.ReassemblyTimeout = time.Second
	b.config.ChallengeDeadline = time.Second
	return b.Build()
}

// GetPresetParameters looks up a preset by name, mirroring the upstream
// GetPresetParameters/GetParametersByName alias pair.
func GetPresetParameters(preset string, modelDim int) (Config, error) {
	switch preset {
	case "mainnet":
		return Mainnet(modelDim)
	case "testnet":
		return Testnet(modelDim)
	case "local":
		return Local(modelDim)
	default:
		return Mainnet(modelDim)
	}
}
