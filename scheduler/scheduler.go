// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scheduler implements the reputation-scaled sleep/wake scheduler
// (TWT, "trust-weighted timing") of spec.md §4.6: each node's sleep
// interval grows with its reputation, from one fifth of the regime's base
// interval at reputation 0 to the full base interval at reputation 1.0, so
// low-reputation peers wake more often than high-reputation ones. It is
// grounded on the
// teacher's timer-plus-select wake idiom (consensus/beam/engine.go's
// time.NewTimer/select loop), generalized behind an injected Clock so the
// cadence can be driven deterministically in tests (spec §6's external
// interface list).
package scheduler

import (
	"context"
	"time"

	"github.com/qres/raas-core/config"
	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/regime"
)

// Role is a node's scheduling mode (spec §4.6).
type Role int

const (
	// Scheduled nodes wake on the reputation-scaled TWT cadence.
	Scheduled Role = iota
	// Sentinel nodes never sleep: always-on relays.
	Sentinel
	// OnDemand nodes only wake on an explicit emergency trigger.
	OnDemand
)

// Clock abstracts real time so the scheduler can be driven deterministically
// in tests, per spec §6.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock backed by the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// BaseInterval returns the regime-indexed base cadence (spec §4.6).
func BaseInterval(cfg config.Config, r regime.Regime) time.Duration {
	switch r {
	case regime.PreStorm:
		return cfg.BaseIntervalPreStorm
	case regime.Storm:
		return cfg.BaseIntervalStorm
	default:
		return cfg.BaseIntervalCalm
	}
}

// ScaledInterval computes interval = base * (1/5 + (4/5) * reputation),
// spec §4.6's TWT formula: a reputation of 0 still wakes at 1/5 the base
// cadence (a brand-new peer is never fully silent), and a reputation of
// 1.0 wakes at the full base cadence.
func ScaledInterval(base time.Duration, reputation fixedpoint.Q16_16) time.Duration {
	r := fixedpoint.Clamp(reputation, 0, fixedpoint.FromInt(1))
	factor := fixedpoint.Add(fixedpoint.FromFloat64(0.2), fixedpoint.Mul(fixedpoint.FromFloat64(0.8), r))
	scaled := float64(base) * factor.Float64()
	return time.Duration(scaled)
}

// WakeReason reports why Wait returned.
type WakeReason int

const (
	WakeTimer WakeReason = iota
	WakeEmergency
	WakeCanceled
)

// Scheduler drives one node's sleep/wake cycle.
type Scheduler struct {
	clock Clock
	cfg   config.Config
	role  Role
	wake  chan struct{}
}

// NewScheduler constructs a Scheduler for the given role.
func NewScheduler(cfg config.Config, role Role, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock, cfg: cfg, role: role, wake: make(chan struct{}, 1)}
}

// SetRole changes the scheduling mode, e.g. when an operator promotes a
// node to Sentinel.
func (s *Scheduler) SetRole(role Role) { s.role = role }

// Role returns the current scheduling mode.
func (s *Scheduler) Role() Role { return s.role }

// Interval returns the duration this node should sleep before its next
// round, given the current regime and the node's own reputation. Sentinel
// nodes always return 0 (never sleep); OnDemand nodes return the caller's
// Wait timeout cap, since they otherwise only wake on EmergencyWake.
func (s *Scheduler) Interval(r regime.Regime, reputation fixedpoint.Q16_16, onDemandCap time.Duration) time.Duration {
	switch s.role {
	case Sentinel:
		return 0
	case OnDemand:
		return onDemandCap
	default:
		return ScaledInterval(BaseInterval(s.cfg, r), reputation)
	}
}

// EmergencyWake signals a waiting Wait call to return immediately,
// regardless of role or the remaining timer (spec §4.6's emergency-wake
// override, e.g. on a Storm transition vote or a liveness rollback).
// Non-blocking: a pending wake is coalesced if one is already queued.
func (s *Scheduler) EmergencyWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until this node's next wake: its scaled interval elapses, an
// emergency wake arrives, or ctx is canceled. onDemandCap bounds how long
// an OnDemand node will wait without an emergency trigger (it still must
// periodically check liveness, per INV-7).
func (s *Scheduler) Wait(ctx context.Context, r regime.Regime, reputation fixedpoint.Q16_16, onDemandCap time.Duration) WakeReason {
	interval := s.Interval(r, reputation, onDemandCap)
	if interval <= 0 {
		return WakeTimer
	}
	timerCh := s.clock.After(interval)
	select {
	case <-timerCh:
		return WakeTimer
	case <-s.wake:
		return WakeEmergency
	case <-ctx.Done():
		return WakeCanceled
	}
}
