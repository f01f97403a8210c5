package metrics

import "errors"

// MultiSink fans events out to multiple sinks. Optional recorders are only
// called on the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTaskResult forwards the event to all sinks and joins their errors.
func (m *MultiSink) RecordTaskResult(ev TaskResultEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordTaskResult(ev))
	}
	return errors.Join(errs...)
}

// RecordSnapshot forwards snapshots.
func (m *MultiSink) RecordSnapshot(ev SnapshotEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(SnapshotRecorder); ok {
			errs = append(errs, rec.RecordSnapshot(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordStatus forwards connector statuses.
func (m *MultiSink) RecordStatus(ev StatusEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(StatusRecorder); ok {
			errs = append(errs, rec.RecordStatus(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordSlotLatency forwards latencies when supported by the sink.
func (m *MultiSink) RecordSlotLatency(lat []SlotLatency) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(LatencyRecorder); ok {
			errs = append(errs, rec.RecordSlotLatency(lat))
		}
	}
	return errors.Join(errs...)
}

// Close closes the sinks holding resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
