// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricBasinsPlanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsud_planner_basins_planned_total",
		Help: "Number of basins that completed the Monte-Carlo composition.",
	})
	metricIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsud_planner_mc_iterations_total",
		Help: "Number of Monte-Carlo iterations performed.",
	})
	metricCandidates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsud_planner_tech_candidates_total",
		Help: "Number of sized technology candidates generated by the opportunity mapper.",
	})
	metricStrategiesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsud_planner_strategies_emitted_total",
		Help: "Number of basin strategies emitted as finalists.",
	})
)

// RegisterMetrics adds the planner metrics to the default Prometheus
// registry. Call once at startup.
func RegisterMetrics() {
	prometheus.MustRegister(metricBasinsPlanned, metricIterations, metricCandidates, metricStrategiesEmitted)
}
