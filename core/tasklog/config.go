package tasklog

import "fmt"

// Config selects the audit log backend. Backend is one of "none", "jsonl",
// "jsonl_rotating" or "sqlite".
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 7
	}
}

// Validate checks for invalid fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "none":
		return nil
	case "jsonl", "jsonl_rotating", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("tasklog: path required for backend %s", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("tasklog: unknown backend %q", c.Backend)
	}
}

// Open builds the configured store.
func Open(c Config) (Store, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case "jsonl":
		return NewJSONLStore(c.Path)
	case "jsonl_rotating":
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(c.Path)
	default:
		return NopStore{}, nil
	}
}
