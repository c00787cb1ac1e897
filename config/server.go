package config

import (
	"fmt"
	"time"
)

// ServerConfig configures the HTTP API of the serve command.
type ServerConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on every endpoint
	// except health and metrics.
	Token             string `json:"token"`
	ReadHeaderTimeout int    `json:"read_header_timeout_seconds"`
	ShutdownTimeout   int    `json:"shutdown_timeout_seconds"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30
	}
}

// Validate checks the listen address.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server: addr is required")
	}
	return nil
}

// ReadHeader returns the read header timeout.
func (c ServerConfig) ReadHeader() time.Duration {
	return time.Duration(c.ReadHeaderTimeout) * time.Second
}

// Shutdown returns the graceful shutdown timeout.
func (c ServerConfig) Shutdown() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}
