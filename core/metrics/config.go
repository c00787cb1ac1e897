package metrics

import "github.com/yatrik/scheduler/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPath is the HTTP path of the scrape endpoint served by the
	// serve command.
	PrometheusPath string `json:"prometheus_path"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.PrometheusPath == "" {
		c.PrometheusPath = "/metrics"
	}
}
