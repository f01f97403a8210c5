// Package config loads the service configuration from a yaml or json file
// with K_ prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ocppbridge/api/tasks"
	"github.com/kilianp07/ocppbridge/core/dispatch"
	"github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/core/tasklog"
	"github.com/kilianp07/ocppbridge/core/telemetry"
	"github.com/kilianp07/ocppbridge/infra/monitoring"
	"github.com/kilianp07/ocppbridge/infra/mqtt"
	"github.com/kilianp07/ocppbridge/infra/ocppj"
	"github.com/kilianp07/ocppbridge/infra/txstore"
)

type Config struct {
	MQTT         mqtt.Config             `json:"mqtt"`
	Dispatch     dispatch.Config         `json:"dispatch"`
	Tasks        task.Config             `json:"tasks"`
	Telemetry    telemetry.Config        `json:"telemetry"`
	OCPP         ocppj.Config            `json:"ocpp"`
	API          tasks.Config            `json:"api"`
	Metrics      metrics.Config          `json:"metrics"`
	TaskLog      tasklog.Config          `json:"tasklog"`
	Transactions txstore.Config          `json:"transactions"`
	Sentry       monitoring.SentryConfig `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Tasks.SetDefaults()
	c.Telemetry.SetDefaults()
	c.OCPP.SetDefaults()
	c.API.SetDefaults()
	c.Metrics.SetDefaults()
	c.TaskLog.SetDefaults()
	c.Transactions.SetDefaults()
}

// Validate reports every invalid section at once.
func (c Config) Validate() error {
	return errors.Join(
		c.MQTT.Validate(),
		c.Telemetry.Validate(),
		c.OCPP.Validate(),
		c.TaskLog.Validate(),
		c.Transactions.Validate(),
		c.Sentry.Validate(),
	)
}
