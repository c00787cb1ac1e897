package config

import (
	"fmt"
	"strings"
)

// LoggingConfig defines the log verbosity.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	c.Level = strings.ToLower(c.Level)
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("logging: unknown level %s", c.Level)
}
