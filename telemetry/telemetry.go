// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package telemetry wires the ambient Prometheus surface every component
// registers into, grounded on the teacher's poll.DefaultFactory
// (poll/default.go: a package-level registry constructed with
// prometheus.NewRegistry() and handed to every consumer at construction).
// Non-goals in spec.md §1 scope out differential-privacy noise and 3D
// visualization, not ordinary counters — this package is carried as part
// of the ambient stack regardless.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every gauge/counter the core's subsystems publish to.
type Metrics struct {
	Registry *prometheus.Registry

	RoundsTotal          prometheus.Counter
	RegimeTransitions    *prometheus.CounterVec
	AuditConvictions     prometheus.Counter
	AuditPasses          prometheus.Counter
	EnergyPercent        prometheus.Gauge
	InfluenceHistogram   prometheus.Histogram
	GossipQueueDepth     prometheus.Gauge
	ReputationBannedPeers prometheus.Gauge
}

// New constructs a Metrics bundle registered against a fresh registry, the
// same "one registry per constructed component tree" pattern
// poll.NewFactory follows.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		RoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raas_rounds_total",
			Help: "Total number of step_round invocations completed.",
		}),
		RegimeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raas_regime_transitions_total",
			Help: "Count of committed regime transitions, labeled by destination regime.",
		}, []string{"to"}),
		AuditConvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raas_audit_convictions_total",
			Help: "Total number of peers banned by the audit conviction rule.",
		}),
		AuditPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raas_audit_passes_total",
			Help: "Total number of audit challenges that passed verification.",
		}),
		EnergyPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raas_energy_percent",
			Help: "Current EnergyPool reserve as a percentage of capacity.",
		}),
		InfluenceHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "raas_influence_weight",
			Help:    "Distribution of per-peer influence weights applied during aggregation.",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
		}),
		GossipQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raas_gossip_queue_depth",
			Help: "Current number of items in the outbound gossip priority queue.",
		}),
		ReputationBannedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raas_reputation_banned_peers",
			Help: "Current count of banned peers in the reputation table.",
		}),
	}
	reg.MustRegister(
		m.RoundsTotal,
		m.RegimeTransitions,
		m.AuditConvictions,
		m.AuditPasses,
		m.EnergyPercent,
		m.InfluenceHistogram,
		m.GossipQueueDepth,
		m.ReputationBannedPeers,
	)
	return m
}

// ObserveInfluence records one peer's applied influence weight, feeding the
// INV-1/INV-2 bounded-influence histogram.
func (m *Metrics) ObserveInfluence(weight float64) {
	m.InfluenceHistogram.Observe(weight)
}

// RecordRegimeTransition increments the transition counter for the regime
// newly entered.
func (m *Metrics) RecordRegimeTransition(to string) {
	m.RegimeTransitions.WithLabelValues(to).Inc()
}
