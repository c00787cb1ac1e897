package metrics

import (
	"time"

	"github.com/yatrik/scheduler/core/model"
)

// RunResult summarises one mass scheduling run.
type RunResult struct {
	RunID       string
	ServiceDate string
	Created     int
	Skipped     int
	SuccessRate float64
	SkipReasons map[string]int
	Depots      []DepotResult
	Duration    time.Duration
	Cancelled   bool
	Time        time.Time
}

// DepotResult carries the per-depot counters of a run.
type DepotResult struct {
	DepotID string
	Created int
	Skipped int
}

// MetricsSink records run results for observability purposes.
type MetricsSink interface {
	RecordRunResult(res RunResult) error
}

// TripResult is the outcome of one slot.
type TripResult struct {
	RunID        string
	RouteID      string
	DepotID      string
	BusID        string
	DriverID     string
	ConductorID  string
	Start        time.Time
	Created      bool
	Reason       string
	WriteLatency time.Duration
}

// TripRecorder is implemented by sinks able to record individual slot outcomes.
type TripRecorder interface {
	RecordTripResults(res []TripResult) error
}

// Utilization is the load of one resource at the end of a run.
type Utilization struct {
	RunID       string
	Kind        model.ResourceKind
	ResourceID  string
	DepotID     string
	Trips       int
	Cap         int
	Ratio       float64
	BusyMinutes int
	Time        time.Time
}

// UtilizationRecorder is implemented by sinks able to record resource load.
type UtilizationRecorder interface {
	RecordUtilization(u []Utilization) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRunResult(RunResult) error       { return nil }
func (NopSink) RecordTripResults([]TripResult) error  { return nil }
func (NopSink) RecordUtilization([]Utilization) error { return nil }
