package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/events"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

type memorySink struct {
	mu        sync.Mutex
	results   []coremetrics.TaskResultEvent
	latencies []coremetrics.SlotLatency
	snapshots []coremetrics.SnapshotEvent
	statuses  []coremetrics.StatusEvent
}

func (m *memorySink) RecordTaskResult(ev coremetrics.TaskResultEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, ev)
	return nil
}

func (m *memorySink) RecordSlotLatency(l []coremetrics.SlotLatency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, l...)
	return nil
}

func (m *memorySink) RecordSnapshot(ev coremetrics.SnapshotEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, ev)
	return nil
}

func (m *memorySink) RecordStatus(ev coremetrics.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, ev)
	return nil
}

func TestEventCollector(t *testing.T) {
	b := Buses{
		Tasks:     eventbus.New[events.TaskEvent](),
		Snapshots: eventbus.New[events.SnapshotEvent](),
		Statuses:  eventbus.New[events.StatusEvent](),
	}
	sink := &memorySink{}
	wait := StartEventCollector(context.Background(), b, sink, logger.NopLogger{})

	t0 := time.Now()
	b.Tasks.Publish(events.TaskEvent{TaskID: 1, Kind: command.KindReset, Action: events.ActionDispatched, Targets: []string{"a", "b"}, Time: t0})
	b.Tasks.Publish(events.TaskEvent{TaskID: 1, Kind: command.KindReset, Action: events.ActionResolved, DeviceID: "a", State: "Completed", Time: t0.Add(200 * time.Millisecond)})
	b.Tasks.Publish(events.TaskEvent{
		TaskID: 1, Kind: command.KindReset, Action: events.ActionClosed, Targets: []string{"a", "b"},
		Result: "partial", Counts: map[string]int{"Completed": 1, "TimedOut": 1}, Duration: time.Second, Time: t0.Add(time.Second),
	})
	b.Snapshots.Publish(events.SnapshotEvent{DeviceID: "cb1", ConnectorID: 1, Snapshot: model.MetricSnapshot{Energy: 1}, Bookend: true})
	b.Statuses.Publish(events.StatusEvent{DeviceID: "cb1", ConnectorID: 1, Status: model.ConnectorStatus{Status: "Available"}})

	b.Tasks.Close()
	b.Snapshots.Close()
	b.Statuses.Close()
	wait()

	require.Len(t, sink.results, 1)
	r := sink.results[0]
	assert.Equal(t, "Reset", r.Kind)
	assert.Equal(t, "partial", r.Result)
	assert.Equal(t, 2, r.Targets)
	assert.Equal(t, 1, r.Completed)
	assert.Equal(t, 1, r.TimedOut)

	require.Len(t, sink.latencies, 1)
	assert.Equal(t, 200*time.Millisecond, sink.latencies[0].Latency)
	require.Len(t, sink.snapshots, 1)
	assert.True(t, sink.snapshots[0].Bookend)
	require.Len(t, sink.statuses, 1)
}

func TestEventCollectorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wait := StartEventCollector(ctx, Buses{Tasks: eventbus.New[events.TaskEvent]()}, coremetrics.NopSink{}, logger.NopLogger{})
	cancel()
	done := make(chan struct{})
	go func() { wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}
