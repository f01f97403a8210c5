package tasks

import "time"

const (
	defaultAddr           = ":8080"
	defaultMaxWaitSeconds = 60
)

// Config defines the HTTP API settings.
type Config struct {
	Addr string `json:"addr"`
	// Token enables bearer authentication when non-empty.
	Token          string `json:"token"`
	MaxWaitSeconds int    `json:"max_wait_seconds"`
	// DispatchRate caps accepted dispatches per second. Zero disables it.
	DispatchRate  float64 `json:"dispatch_rate"`
	DispatchBurst int     `json:"dispatch_burst"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.MaxWaitSeconds <= 0 {
		c.MaxWaitSeconds = defaultMaxWaitSeconds
	}
	if c.DispatchRate > 0 && c.DispatchBurst <= 0 {
		c.DispatchBurst = 1
	}
}

func (c Config) maxWait() time.Duration { return time.Duration(c.MaxWaitSeconds) * time.Second }
