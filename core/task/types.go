package task

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
)

// ID identifies a task within the running process. Ids start at 1 and are
// never reused until the process restarts.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return ID(v), nil
}

// State is the lifecycle state of a result slot.
type State int

const (
	StatePending State = iota
	StateCompleted
	StateErrored
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateCompleted:
		return "Completed"
	case StateErrored:
		return "Errored"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st := StatePending; st <= StateTimedOut; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown slot state %q", b)
}

// Outcome is the terminal value written into a slot.
type Outcome struct {
	State   State
	Payload json.RawMessage
	Code    string
	Message string
}

// Completed builds a successful outcome carrying the raw device answer.
func Completed(payload json.RawMessage) Outcome {
	return Outcome{State: StateCompleted, Payload: payload}
}

// Errored builds a failed outcome.
func Errored(code, message string) Outcome {
	return Outcome{State: StateErrored, Code: code, Message: message}
}

// Slot holds the result for one target device.
type Slot struct {
	DeviceID     string          `json:"device_id"`
	State        State           `json:"state"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// Resolved reports whether the slot left the pending state.
func (s Slot) Resolved() bool { return s.State != StatePending }

// View is an immutable copy of a task.
type View struct {
	ID       ID           `json:"id"`
	Kind     command.Kind `json:"kind"`
	Created  time.Time    `json:"created"`
	Deadline time.Time    `json:"deadline"`
	Closed   bool         `json:"closed"`
	ClosedAt *time.Time   `json:"closed_at,omitempty"`
	Slots    []Slot       `json:"slots"`
}

// Slot returns the slot of deviceID.
func (v View) Slot(deviceID string) (Slot, bool) {
	for _, s := range v.Slots {
		if s.DeviceID == deviceID {
			return s, true
		}
	}
	return Slot{}, false
}

// Counts returns the number of slots per state.
func (v View) Counts() map[State]int {
	res := make(map[State]int, 4)
	for _, s := range v.Slots {
		res[s.State]++
	}
	return res
}

// Response decodes the completed answer of deviceID into its typed variant.
func (v View) Response(deviceID string) (command.Response, error) {
	s, ok := v.Slot(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s not targeted by task %s", ErrUnknownDevice, deviceID, v.ID)
	}
	if s.State != StateCompleted {
		return nil, fmt.Errorf("slot %s of task %s is %s", deviceID, v.ID, s.State)
	}
	return command.DecodeResponse(v.Kind, s.Payload)
}

// ResolveResult tells the caller what Resolve did.
type ResolveResult int

const (
	// Applied means the outcome was written.
	Applied ResolveResult = iota
	// AlreadyResolved means the slot was terminal and kept its value.
	AlreadyResolved
	// TimedOut means the slot had timed out and kept its value.
	TimedOut
)

func (r ResolveResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case TimedOut:
		return "timed_out"
	default:
		return "already_resolved"
	}
}
