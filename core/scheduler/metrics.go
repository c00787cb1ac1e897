package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	runsInProgress   prometheus.Gauge
	slotsTotal       *prometheus.CounterVec
	tripWriteLatency prometheus.Histogram
	lastSuccessRate  prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Gauge, *prometheus.CounterVec, prometheus.Histogram, prometheus.Gauge) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Number of mass scheduling runs by outcome",
		},
		[]string{"outcome"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_run_duration_seconds",
			Help:    "Wall time of mass scheduling runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	inProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_runs_in_progress",
			Help: "Number of runs currently executing",
		},
	)
	slots := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_slots_total",
			Help: "Generated slots by result (created or skip reason)",
		},
		[]string{"depot_id", "result"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_trip_write_latency_seconds",
			Help:    "Latency of trip create calls against the backend",
			Buckets: prometheus.DefBuckets,
		},
	)
	rate := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_last_success_rate_percent",
			Help: "Success rate of the most recent run",
		},
	)
	return runs, dur, inProgress, slots, lat, rate
}

func init() {
	runsTotal, runDuration, runsInProgress, slotsTotal, tripWriteLatency, lastSuccessRate = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers scheduler metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(runsTotal, runDuration, runsInProgress, slotsTotal, tripWriteLatency, lastSuccessRate)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	runsTotal, runDuration, runsInProgress, slotsTotal, tripWriteLatency, lastSuccessRate = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
