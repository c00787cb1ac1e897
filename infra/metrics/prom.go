package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/yatrik/scheduler/core/metrics"
)

// PromSink exposes the outcome of the latest runs as Prometheus metrics.
type PromSink struct {
	skips       *prometheus.CounterVec
	depotTrips  *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	busy        *prometheus.GaugeVec
}

// NewPromSink registers run metrics on the default Prometheus registerer.
// The HTTP endpoint is served separately on cfg.PrometheusPath.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	skips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_skips_total",
		Help: "Skipped slots by reason",
	}, []string{"reason"})
	depotTrips := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_depot_last_run_slots",
		Help: "Slots of the most recent run per depot and result",
	}, []string{"depot_id", "result"})
	utilization := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_resource_utilization_ratio",
		Help: "Trips assigned to a resource divided by its daily cap",
	}, []string{"kind", "resource_id", "depot_id"})
	busy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_resource_busy_minutes",
		Help: "Minutes a resource is reserved on the service day",
	}, []string{"kind", "resource_id", "depot_id"})

	var err error
	if skips, err = register(reg, skips); err != nil {
		return nil, err
	}
	if depotTrips, err = register(reg, depotTrips); err != nil {
		return nil, err
	}
	if utilization, err = register(reg, utilization); err != nil {
		return nil, err
	}
	if busy, err = register(reg, busy); err != nil {
		return nil, err
	}
	return &PromSink{skips: skips, depotTrips: depotTrips, utilization: utilization, busy: busy}, nil
}

// register returns the already registered collector when c was registered
// by an earlier sink.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRunResult counts skip reasons and publishes per-depot totals.
func (s *PromSink) RecordRunResult(res coremetrics.RunResult) error {
	for reason, n := range res.SkipReasons {
		s.skips.WithLabelValues(reason).Add(float64(n))
	}
	for _, d := range res.Depots {
		s.depotTrips.WithLabelValues(d.DepotID, "created").Set(float64(d.Created))
		s.depotTrips.WithLabelValues(d.DepotID, "skipped").Set(float64(d.Skipped))
	}
	return nil
}

// RecordUtilization sets the load gauges of every resource.
func (s *PromSink) RecordUtilization(us []coremetrics.Utilization) error {
	for _, u := range us {
		labels := []string{string(u.Kind), u.ResourceID, u.DepotID}
		s.utilization.WithLabelValues(labels...).Set(u.Ratio)
		s.busy.WithLabelValues(labels...).Set(float64(u.BusyMinutes))
	}
	return nil
}
