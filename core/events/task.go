package events

import (
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
)

// Task actions.
const (
	ActionDispatched = "dispatched"
	ActionResolved   = "resolved"
	ActionClosed     = "closed"
)

// TaskEvent is published for task lifecycle transitions. DeviceID and State
// are set for resolutions only. Result, Counts and Duration are set when the
// task closes.
type TaskEvent struct {
	TaskID   uint64
	Kind     command.Kind
	Action   string
	DeviceID string
	State    string
	Targets  []string
	Result   string
	Counts   map[string]int
	Duration time.Duration
	Time     time.Time
}
