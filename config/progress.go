package config

import (
	"fmt"

	"github.com/yatrik/scheduler/core/factory"
)

// ProgressConfig lists the sinks receiving run progress events.
type ProgressConfig struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// SendTimeoutMS bounds each delivery to a sink.
	SendTimeoutMS int `json:"send_timeout_ms"`
}

// SetDefaults applies default values.
func (c *ProgressConfig) SetDefaults() {
	if c.SendTimeoutMS <= 0 {
		c.SendTimeoutMS = 5000
	}
}

// Validate checks that every sink names a type.
func (c ProgressConfig) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("progress: sink %d has no type", i)
		}
	}
	return nil
}
