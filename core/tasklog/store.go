// Package tasklog keeps an append-only audit trail of closed tasks.
package tasklog

import (
	"context"
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/task"
)

// Record captures one closed task and the outcome of every slot.
type Record struct {
	Timestamp time.Time    `json:"timestamp"`
	TaskID    task.ID      `json:"task_id"`
	Kind      command.Kind `json:"kind"`
	Created   time.Time    `json:"created"`
	Result    string       `json:"result"`
	Targets   []string     `json:"targets"`
	Slots     []task.Slot  `json:"slots"`
}

// FromView builds a record from a closed task view.
func FromView(v task.View) Record {
	ts := v.Deadline
	if v.ClosedAt != nil {
		ts = *v.ClosedAt
	}
	targets := make([]string, 0, len(v.Slots))
	for _, s := range v.Slots {
		targets = append(targets, s.DeviceID)
	}
	return Record{
		Timestamp: ts,
		TaskID:    v.ID,
		Kind:      v.Kind,
		Created:   v.Created,
		Result:    task.Result(v),
		Targets:   targets,
		Slots:     v.Slots,
	}
}

// Query defines filters for retrieving records.
type Query struct {
	Start    time.Time
	End      time.Time
	DeviceID string
	Kind     command.Kind
}

// Match reports whether r passes every filter of q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.DeviceID == "" {
		return true
	}
	for _, id := range r.Targets {
		if id == q.DeviceID {
			return true
		}
	}
	return false
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
