package config

import "fmt"

// HistoryConfig defines settings for dispatch history storage.
type HistoryConfig struct {
	// Backend selects the store type: "jsonl", "sqlite" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB enables size-based rotation of the jsonl backend when
	// positive. Rotated files stay queryable.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *HistoryConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend != "none" {
		c.Path = "dispatch_history.log"
	}
}

// Validate checks mandatory fields.
func (c HistoryConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
	case "none":
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	return nil
}
