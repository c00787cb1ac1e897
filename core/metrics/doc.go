// Package metrics defines the sinks that receive scheduling run results.
// Every sink implements MetricsSink; optional interfaces (TripRecorder,
// UtilizationRecorder) are detected by type assertion. Several sinks are
// combined with NewMultiSink, which NewMetricsSink does automatically when
// more than one sink is configured.
package metrics
