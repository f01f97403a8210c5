// Package events defines the events emitted on the event bus.
//
// Available event types:
//   - TaskEvent: task dispatched, slot resolved or task closed
//   - SnapshotEvent: normalized meter snapshot handed to the publisher
//   - StatusEvent: connector status forwarded to the publisher
package events
