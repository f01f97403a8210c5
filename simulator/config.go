// Package simulator runs simulated OCPP-J charge points against a central
// system endpoint.
package simulator

import (
	"fmt"
	"strings"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	// URL is the endpoint base, the charge point id is appended to it.
	URL         string
	Count       int
	IDPrefix    string
	ConnectorID int
	IDTag       string
	Interval    time.Duration
	PowerW      float64
	VoltageV    float64
	Phases      int
	AnswerDelay time.Duration
	DropRate    float64
	// AutoStart begins a charging session right after boot.
	AutoStart bool
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "ws://localhost:8887/ocpp/"
	}
	if c.Count <= 0 {
		c.Count = 1
	}
	if c.IDPrefix == "" {
		c.IDPrefix = "sim"
	}
	if c.ConnectorID <= 0 {
		c.ConnectorID = 1
	}
	if c.IDTag == "" {
		c.IDTag = "SIMTAG"
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.PowerW <= 0 {
		c.PowerW = 11000
	}
	if c.VoltageV <= 0 {
		c.VoltageV = 230
	}
	if c.Phases <= 0 {
		c.Phases = 3
	}
}

// Validate checks for invalid fields.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("simulator: url must use ws or wss, got %q", c.URL)
	}
	if c.Phases > 3 {
		return fmt.Errorf("simulator: at most 3 phases")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("simulator: drop rate must be within [0,1]")
	}
	return nil
}
