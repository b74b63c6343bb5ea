// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package swarm

import (
	"context"
	"sync"
)

// LoopbackRadio is the in-memory Radio spec §6 requires to exist for
// tests: every Send is appended to an internal queue that Recv drains in
// order. It is safe for concurrent use so a test can wire two Nodes
// together through a shared pair.
type LoopbackRadio struct {
	mu    sync.Mutex
	inbox [][]byte
}

// NewLoopbackRadio constructs an empty LoopbackRadio.
func NewLoopbackRadio() *LoopbackRadio {
	return &LoopbackRadio{}
}

// Deliver injects a message as if it had arrived over the wire, for tests
// that want to hand one node's outbound bytes directly to another's radio.
func (r *LoopbackRadio) Deliver(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	r.inbox = append(r.inbox, cp)
}

// Send appends b to this radio's own queue (a pure loopback: whatever is
// sent can be received back from the same instance). Tests that want
// peer-to-peer delivery should call Deliver on the remote side instead.
func (r *LoopbackRadio) Send(ctx context.Context, b []byte) error {
	r.Deliver(b)
	return nil
}

// Recv returns the oldest pending message, if any.
func (r *LoopbackRadio) Recv(ctx context.Context) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inbox) == 0 {
		return nil, false, nil
	}
	b := r.inbox[0]
	r.inbox = r.inbox[1:]
	return b, true, nil
}
