// Package metrics exposes the prometheus instrumentation shared by the
// orchestrator and the dashboard endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CycleRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_cycle_runs_total",
			Help: "Total number of orchestrator cycles by outcome",
		},
		[]string{"status"},
	)
	StepDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_step_duration_seconds",
			Help:    "Duration of individual cycle steps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)
	AlertsByLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monitor_alerts_by_level",
			Help: "Current number of active alerts per severity level",
		},
		[]string{"level"},
	)
	DeathNailsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_death_nails_total",
			Help: "Total number of terminal failure escalations",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CycleRunsTotal,
		StepDurationSeconds,
		AlertsByLevel,
		DeathNailsTotal,
	)
}
