// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qres/raas-core/config"
	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/regime"
)

// fakeClock lets tests control exactly when the timer channel fires.
type fakeClock struct {
	ch chan time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{ch: make(chan time.Time, 1)} }
func (f *fakeClock) Now() time.Time                        { return time.Unix(0, 0) }
func (f *fakeClock) After(d time.Duration) <-chan time.Time { return f.ch }
func (f *fakeClock) fire()                                 { f.ch <- time.Unix(0, 0) }

func testConfig() config.Config {
	cfg, err := config.NewBuilder().WithModelDim(4).Build()
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestScaledIntervalAtZeroReputationIsOneFifthBase(t *testing.T) {
	base := 100 * time.Second
	got := ScaledInterval(base, 0)
	require.InDelta(t, 20.0, got.Seconds(), 0.1)
}

func TestScaledIntervalAtFullReputationIsBase(t *testing.T) {
	base := 100 * time.Second
	got := ScaledInterval(base, fixedpoint.FromInt(1))
	require.InDelta(t, 100.0, got.Seconds(), 0.1)
}

func TestScaledIntervalAtHalfReputation(t *testing.T) {
	base := 100 * time.Second
	got := ScaledInterval(base, fixedpoint.FromFloat64(0.5))
	require.InDelta(t, 60.0, got.Seconds(), 0.1) // 0.2 + 0.8*0.5 = 0.6
}

func TestBaseIntervalSelectsByRegime(t *testing.T) {
	cfg := testConfig()
	require.Equal(t, cfg.BaseIntervalCalm, BaseInterval(cfg, regime.Calm))
	require.Equal(t, cfg.BaseIntervalPreStorm, BaseInterval(cfg, regime.PreStorm))
	require.Equal(t, cfg.BaseIntervalStorm, BaseInterval(cfg, regime.Storm))
}

func TestSentinelNeverSleeps(t *testing.T) {
	cfg := testConfig()
	s := NewScheduler(cfg, Sentinel, newFakeClock())
	reason := s.Wait(context.Background(), regime.Calm, fixedpoint.FromFloat64(0.1), time.Hour)
	require.Equal(t, WakeTimer, reason)
}

func TestScheduledWaitsForTimer(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	s := NewScheduler(cfg, Scheduled, clock)

	done := make(chan WakeReason, 1)
	go func() {
		done <- s.Wait(context.Background(), regime.Calm, fixedpoint.FromFloat64(0.5), time.Hour)
	}()

	clock.fire()
	select {
	case reason := <-done:
		require.Equal(t, WakeTimer, reason)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the clock fired")
	}
}

func TestEmergencyWakeInterruptsTimer(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	s := NewScheduler(cfg, Scheduled, clock)

	done := make(chan WakeReason, 1)
	go func() {
		done <- s.Wait(context.Background(), regime.Calm, fixedpoint.FromFloat64(0.5), time.Hour)
	}()

	s.EmergencyWake()
	select {
	case reason := <-done:
		require.Equal(t, WakeEmergency, reason)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after emergency wake")
	}
}

func TestContextCancelInterruptsWait(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	s := NewScheduler(cfg, Scheduled, clock)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan WakeReason, 1)
	go func() {
		done <- s.Wait(ctx, regime.Calm, fixedpoint.FromFloat64(0.5), time.Hour)
	}()

	cancel()
	select {
	case reason := <-done:
		require.Equal(t, WakeCanceled, reason)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after context cancel")
	}
}

func TestOnDemandUsesCapWithoutEmergency(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	s := NewScheduler(cfg, OnDemand, clock)

	got := s.Interval(regime.Calm, fixedpoint.FromFloat64(0.9), 42*time.Second)
	require.Equal(t, 42*time.Second, got)
}

func TestSetRoleChangesBehavior(t *testing.T) {
	cfg := testConfig()
	s := NewScheduler(cfg, Scheduled, newFakeClock())
	require.Equal(t, Scheduled, s.Role())
	s.SetRole(Sentinel)
	require.Equal(t, Sentinel, s.Role())
}
