// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	m := New()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestRecordRegimeTransitionIncrementsLabeledCounter(t *testing.T) {
	m := New()
	m.RecordRegimeTransition("storm")
	m.RecordRegimeTransition("storm")
	m.RecordRegimeTransition("calm")

	require.Equal(t, float64(2), testutil.ToFloat64(m.RegimeTransitions.WithLabelValues("storm")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.RegimeTransitions.WithLabelValues("calm")))
}

func TestObserveInfluenceFeedsHistogram(t *testing.T) {
	m := New()
	m.ObserveInfluence(0.25)
	m.ObserveInfluence(0.5)

	require.Equal(t, 2, testutil.CollectAndCount(m.InfluenceHistogram))
}
