package metrics

import "errors"

// MultiSink fans results out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRunResult forwards the result to all sinks. Every sink is attempted;
// the errors are joined.
func (m *MultiSink) RecordRunResult(res RunResult) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordRunResult(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordTripResults forwards slot outcomes to sinks supporting them.
func (m *MultiSink) RecordTripResults(res []TripResult) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(TripRecorder); ok {
			if err := rec.RecordTripResults(res); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordUtilization forwards utilization to sinks supporting it.
func (m *MultiSink) RecordUtilization(u []Utilization) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(UtilizationRecorder); ok {
			if err := rec.RecordUtilization(u); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
