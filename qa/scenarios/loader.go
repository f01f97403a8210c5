package scenarios

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ocppbridge/core/command"
)

// Behaviour describes how a simulated charge box reacts to a command.
type Behaviour string

const (
	Accept   Behaviour = "accept"
	Reject   Behaviour = "reject"
	Fail     Behaviour = "error"
	Silent   Behaviour = "silent"
	SendFail Behaviour = "send_fail"
)

type BoxDef struct {
	ID        string    `yaml:"id"`
	Behaviour Behaviour `yaml:"behaviour"`
	// Connected defaults to true.
	Connected *bool `yaml:"connected,omitempty"`
}

func (b BoxDef) IsConnected() bool { return b.Connected == nil || *b.Connected }

type StepDef struct {
	Kind    string         `yaml:"kind"`
	Payload map[string]any `yaml:"payload,omitempty"`
	Targets []string       `yaml:"targets"`
	Expect  Expected       `yaml:"expect"`
}

// Command decodes the step payload into its typed request.
func (s StepDef) Command() (command.Command, error) {
	kind, err := command.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if s.Payload == nil {
		raw = nil
	}
	return command.DecodeCommand(kind, raw)
}

type Expected struct {
	// Error is one of not_connected, no_targets or invalid.
	Error     string `yaml:"error,omitempty"`
	Slots     int    `yaml:"slots"`
	Completed int    `yaml:"completed"`
	Errored   int    `yaml:"errored"`
	TimedOut  int    `yaml:"timed_out"`
	Result    string `yaml:"result,omitempty"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Boxes       []BoxDef  `yaml:"boxes"`
	Steps       []StepDef `yaml:"steps"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: name required", path)
	}
	return &sc, nil
}
