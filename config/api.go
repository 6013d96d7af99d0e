package config

import "fmt"

// APIConfig defines settings for the HTTP API server.
type APIConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr"`
	// Token guards the history and integrity endpoints when non-empty.
	Token string `json:"token"`
	// ShutdownSeconds bounds the graceful shutdown on exit.
	ShutdownSeconds int `json:"shutdown_seconds"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownSeconds == 0 {
		c.ShutdownSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}
