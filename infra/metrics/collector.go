package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/ocppbridge/core/events"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

// Buses groups the event buses consumed by the collector. Nil buses are
// skipped.
type Buses struct {
	Tasks     *eventbus.Bus[events.TaskEvent]
	Snapshots *eventbus.Bus[events.SnapshotEvent]
	Statuses  *eventbus.Bus[events.StatusEvent]
}

// StartEventCollector subscribes to the buses and records events in sink.
// Bus drop counts are exported as event_bus_dropped_total. It stops when the
// context is canceled or every subscribed bus is closed.
// The returned function waits for the collector goroutines to exit.
func StartEventCollector(ctx context.Context, b Buses, sink coremetrics.MetricsSink, log logger.Logger) (wait func()) {
	var wg sync.WaitGroup
	if sink == nil {
		return wg.Wait
	}
	if b.Tasks != nil {
		sub := b.Tasks.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer b.Tasks.Unsubscribe(sub)
			collectTasks(ctx, sub, sink, log)
		}()
	}
	if b.Snapshots != nil {
		if rec, ok := sink.(coremetrics.SnapshotRecorder); ok {
			sub := b.Snapshots.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.Snapshots.Unsubscribe(sub)
				consume(ctx, sub, func(e events.SnapshotEvent) error {
					return rec.RecordSnapshot(coremetrics.SnapshotEvent{
						DeviceID:    e.DeviceID,
						ConnectorID: e.ConnectorID,
						Snapshot:    e.Snapshot,
						Bookend:     e.Bookend,
					})
				}, log)
			}()
		}
	}
	if b.Statuses != nil {
		if rec, ok := sink.(coremetrics.StatusRecorder); ok {
			sub := b.Statuses.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.Statuses.Unsubscribe(sub)
				consume(ctx, sub, func(e events.StatusEvent) error {
					return rec.RecordStatus(coremetrics.StatusEvent{DeviceID: e.DeviceID, ConnectorID: e.ConnectorID, Status: e.Status})
				}, log)
			}()
		}
	}
	dctx, stop := context.WithCancel(ctx)
	sampled := make(chan struct{})
	go func() {
		defer close(sampled)
		newDropSampler(b).run(dctx, dropSampleInterval)
	}()
	return func() {
		wg.Wait()
		stop()
		<-sampled
	}
}

func consume[T any](ctx context.Context, sub <-chan T, fn func(T) error, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := fn(ev); err != nil {
				log.Warnf("metrics sink: %v", err)
			}
		}
	}
}

// collectTasks tracks dispatch times to derive answer latencies and records
// a task result on close.
func collectTasks(ctx context.Context, sub <-chan events.TaskEvent, sink coremetrics.MetricsSink, log logger.Logger) {
	latRec, _ := sink.(coremetrics.LatencyRecorder)
	dispatched := make(map[uint64]time.Time)
	consume(ctx, sub, func(e events.TaskEvent) error {
		switch e.Action {
		case events.ActionDispatched:
			dispatched[e.TaskID] = e.Time
		case events.ActionResolved:
			start, ok := dispatched[e.TaskID]
			if !ok || latRec == nil {
				return nil
			}
			return latRec.RecordSlotLatency([]coremetrics.SlotLatency{{
				Kind:     string(e.Kind),
				DeviceID: e.DeviceID,
				State:    e.State,
				Latency:  e.Time.Sub(start),
			}})
		case events.ActionClosed:
			delete(dispatched, e.TaskID)
			return sink.RecordTaskResult(coremetrics.TaskResultEvent{
				TaskID:    e.TaskID,
				Kind:      string(e.Kind),
				Result:    e.Result,
				Targets:   len(e.Targets),
				Completed: e.Counts["Completed"],
				Errored:   e.Counts["Errored"],
				TimedOut:  e.Counts["TimedOut"],
				Duration:  e.Duration,
				Time:      e.Time,
			})
		}
		return nil
	}, log)
}
