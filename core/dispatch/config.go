package dispatch

import "time"

const (
	defaultTimeoutSeconds     = 30
	defaultSendTimeoutSeconds = 10
)

// Config defines dispatch-related settings.
type Config struct {
	// TimeoutSeconds bounds how long a task waits for device answers.
	TimeoutSeconds     int `json:"timeout_seconds"`
	SendTimeoutSeconds int `json:"send_timeout_seconds"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.SendTimeoutSeconds <= 0 {
		c.SendTimeoutSeconds = defaultSendTimeoutSeconds
	}
}

func (c Config) timeout() time.Duration     { return time.Duration(c.TimeoutSeconds) * time.Second }
func (c Config) sendTimeout() time.Duration { return time.Duration(c.SendTimeoutSeconds) * time.Second }
