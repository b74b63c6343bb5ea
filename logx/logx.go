// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logx adapts github.com/luxfi/log for the RaaS core subsystems.
package logx

import "github.com/luxfi/log"

// Logger is the structured logger every core component is constructed with.
// Calls follow the sugared shape used throughout the teacher codebase:
// logger.Info("message", "key", value, "key2", value2).
type Logger = log.Logger

// NewNoOp returns a logger that discards everything, for tests and targets
// without a configured sink.
func NewNoOp() Logger {
	return log.NewNoOpLogger()
}
