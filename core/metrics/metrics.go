package metrics

import (
	"time"

	"github.com/kilianp07/ocppbridge/core/model"
)

// TaskResultEvent describes a closed command task.
type TaskResultEvent struct {
	TaskID    uint64
	Kind      string
	Result    string
	Targets   int
	Completed int
	Errored   int
	TimedOut  int
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records closed tasks for observability purposes.
type MetricsSink interface {
	RecordTaskResult(ev TaskResultEvent) error
}

// SnapshotEvent is a normalized meter snapshot of one connector.
type SnapshotEvent struct {
	DeviceID    string
	ConnectorID int
	Snapshot    model.MetricSnapshot
	Bookend     bool
}

// SnapshotRecorder records connector snapshots.
type SnapshotRecorder interface {
	RecordSnapshot(ev SnapshotEvent) error
}

// StatusEvent is a connector status change.
type StatusEvent struct {
	DeviceID    string
	ConnectorID int
	Status      model.ConnectorStatus
}

// StatusRecorder records connector statuses.
type StatusRecorder interface {
	RecordStatus(ev StatusEvent) error
}

// SlotLatency is the time between dispatch and one device answer.
type SlotLatency struct {
	Kind     string
	DeviceID string
	State    string
	Latency  time.Duration
}

// LatencyRecorder is implemented by sinks able to record answer latency.
type LatencyRecorder interface {
	RecordSlotLatency(lat []SlotLatency) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTaskResult(TaskResultEvent) error { return nil }

func (NopSink) RecordSnapshot(SnapshotEvent) error    { return nil }
func (NopSink) RecordStatus(StatusEvent) error        { return nil }
func (NopSink) RecordSlotLatency([]SlotLatency) error { return nil }
