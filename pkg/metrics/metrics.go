/*
Copyright PD Control Plane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics holds the Prometheus instrumentation for the control
// plane: scheduling decisions by kind, prefix-hit ratio, and per-host
// pool occupancy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelKind = "kind"
	LabelHost = "host"

	KindPrefill = "prefill"
	KindDecode  = "decode"
	KindHybrid  = "hybrid"
)

// Metrics holds every Prometheus metric the control plane exposes.
type Metrics struct {
	SchedulingDecisionsTotal prometheus.CounterVec
	PrefixHitRatio           prometheus.Histogram
	PoolOccupancy            prometheus.GaugeVec
	SchedulingErrorsTotal    prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		SchedulingDecisionsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pd_control_plane_scheduling_decisions_total",
				Help: "Total scheduling decisions made, by kind (prefill, decode, hybrid)",
			},
			[]string{LabelKind},
		),

		PrefixHitRatio: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pd_control_plane_prefix_hit_ratio",
				Help:    "Fraction of a prefill request's blocks found resident on the chosen host",
				Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
			},
		),

		PoolOccupancy: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pd_control_plane_pool_occupancy_blocks",
				Help: "Current number of resident blocks in a host's memory pool",
			},
			[]string{LabelHost, LabelKind},
		),

		SchedulingErrorsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pd_control_plane_scheduling_errors_total",
				Help: "Scheduling calls that failed, by kind",
			},
			[]string{LabelKind},
		),
	}
}

// RecordDecision records a successful scheduling decision and its
// prefix-hit ratio (requested blocks that were already resident).
func (m *Metrics) RecordDecision(kind string, hitBlocks, totalBlocks int) {
	m.SchedulingDecisionsTotal.WithLabelValues(kind).Inc()
	if totalBlocks > 0 {
		m.PrefixHitRatio.Observe(float64(hitBlocks) / float64(totalBlocks))
	}
}

// RecordError records a scheduling call that failed, e.g. NoCapacity.
func (m *Metrics) RecordError(kind string) {
	m.SchedulingErrorsTotal.WithLabelValues(kind).Inc()
}

// SetPoolOccupancy reports the current resident-block count for a host's
// memory pool.
func (m *Metrics) SetPoolOccupancy(host, kind string, blocks int) {
	m.PoolOccupancy.WithLabelValues(host, kind).Set(float64(blocks))
}
