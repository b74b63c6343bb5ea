// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package swarm ties every subsystem package into the single step_round
// entry point spec.md §5/§6 describes, owning one SwarmState per node (spec
// §5's "no shared mutable state on the consensus path": two nodes' states
// never share memory, only wire-format messages cross between them). It is
// grounded on the teacher's top-level consensus.go, which re-exports a
// struct holding every subsystem behind a single clean entry surface.
package swarm

import (
	"context"

	"github.com/qres/raas-core/fixedpoint"
)

// Predictor produces this node's local model prediction/update, spec §6's
// Predictor::predict(context) -> Q16_16_Vector. It is deterministic given
// its own internal state and is never invoked off the consensus path.
type Predictor interface {
	Predict(ctx context.Context) (fixedpoint.Vector, error)
}

// Sensor produces one scalar observation per round, spec §6's
// Sensor::observe() -> Q16_16 — the source of the entropy signal fed to
// the regime detector.
type Sensor interface {
	Observe(ctx context.Context) (fixedpoint.Q16_16, error)
}

// Radio is the byte-level transport, spec §6's Radio::send/recv. An
// in-memory implementation must exist for tests (spec §6); see
// radio.go's LoopbackRadio.
type Radio interface {
	Send(ctx context.Context, b []byte) error
	// Recv returns ok=false if no message is currently available, never
	// blocking the consensus path (spec §5: the core never suspends on
	// gossip directly).
	Recv(ctx context.Context) (b []byte, ok bool, err error)
}
