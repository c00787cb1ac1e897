package api

import (
	"errors"
	"time"
)

// Config holds the CRUD backend connection settings.
type Config struct {
	BaseURL  string `json:"base_url"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// PageLimit is the page size requested from list endpoints.
	PageLimit  int `json:"page_limit"`
	MaxPages   int `json:"max_pages"`
	TimeoutMS  int `json:"timeout_ms"`
	MaxRetries int `json:"max_retries"`
	BackoffMS  int `json:"backoff_ms"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.PageLimit <= 0 {
		c.PageLimit = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10000
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 15000
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 200
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Email == "" || c.Password == "" {
		return errors.New("api.email and api.password are required")
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
