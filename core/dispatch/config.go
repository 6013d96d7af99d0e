package dispatch

// Config defines assignment engine settings loaded from configuration.
type Config struct {
	// CallNumberPrefix is the human-readable call number prefix,
	// e.g. "CAD" yields "CAD-1".
	CallNumberPrefix string `json:"call_number_prefix"`
	// AckTimeoutSeconds bounds the wait for game-client order acks.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
	// NearestLimit is the default result count for proximity queries.
	NearestLimit int `json:"nearest_limit"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.CallNumberPrefix == "" {
		c.CallNumberPrefix = "CAD"
	}
	if c.AckTimeoutSeconds <= 0 {
		c.AckTimeoutSeconds = 5
	}
	if c.NearestLimit <= 0 {
		c.NearestLimit = 5
	}
}
