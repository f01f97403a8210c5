package ocppj

import "fmt"

// Subprotocol is the websocket subprotocol negotiated with charge points.
const Subprotocol = "ocpp1.6"

// Config defines the charge point endpoint settings.
type Config struct {
	Addr                     string `json:"addr"`
	Path                     string `json:"path"`
	ReadLimitBytes           int64  `json:"read_limit_bytes"`
	PingIntervalSeconds      int    `json:"ping_interval_seconds"`
	PongTimeoutSeconds       int    `json:"pong_timeout_seconds"`
	WriteTimeoutSeconds      int    `json:"write_timeout_seconds"`
	HeartbeatIntervalSeconds int    `json:"heartbeat_interval_seconds"`
	// RequireSubprotocol rejects clients that do not offer ocpp1.6.
	RequireSubprotocol bool `json:"require_subprotocol"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8887"
	}
	if c.Path == "" {
		c.Path = "/ocpp/"
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = 64 << 10
	}
	if c.PingIntervalSeconds <= 0 {
		c.PingIntervalSeconds = 30
	}
	if c.PongTimeoutSeconds <= 0 {
		c.PongTimeoutSeconds = 10
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = 10
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		c.HeartbeatIntervalSeconds = 300
	}
}

// Validate checks the endpoint path.
func (c Config) Validate() error {
	if len(c.Path) == 0 || c.Path[0] != '/' || c.Path[len(c.Path)-1] != '/' {
		return fmt.Errorf("ocpp: path %q must start and end with /", c.Path)
	}
	return nil
}
