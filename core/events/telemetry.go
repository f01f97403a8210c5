package events

import "github.com/kilianp07/ocppbridge/core/model"

// SnapshotEvent is emitted for each snapshot handed to the publisher.
// Bookend is true for synthesized session boundary snapshots.
type SnapshotEvent struct {
	DeviceID    string
	ConnectorID int
	Snapshot    model.MetricSnapshot
	Bookend     bool
	Published   bool
	Err         error
}

// StatusEvent is emitted for each forwarded connector status.
type StatusEvent struct {
	DeviceID    string
	ConnectorID int
	Status      model.ConnectorStatus
	Err         error
}
