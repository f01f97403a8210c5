package txstore

import (
	"fmt"
	"time"

	"github.com/kilianp07/ocppbridge/core/transaction"
)

// Config selects the transaction store backend.
type Config struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`

	// Retention applies to the memory backend only.
	Retention time.Duration `json:"retention"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "transactions.db"
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory", "sqlite":
		return nil
	default:
		return fmt.Errorf("transactions: unknown backend %q", c.Backend)
	}
}

// Open creates the configured store.
func Open(c Config) (transaction.Store, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Backend == "sqlite" {
		return NewSQLiteStore(c.Path)
	}
	return transaction.NewMemoryStore(transaction.WithRetention(c.Retention)), nil
}
