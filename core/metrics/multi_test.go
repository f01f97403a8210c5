package metrics

import (
	"errors"
	"testing"
)

type recordSink struct {
	count int
	err   error
}

func (r *recordSink) RecordTaskResult(TaskResultEvent) error {
	r.count++
	return r.err
}

func (r *recordSink) RecordSlotLatency([]SlotLatency) error {
	r.count++
	return nil
}

type taskOnlySink struct{ count int }

func (s *taskOnlySink) RecordTaskResult(TaskResultEvent) error {
	s.count++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordTaskResult(TaskResultEvent{}); err != nil {
		t.Fatalf("record result: %v", err)
	}
	if err := m.RecordSlotLatency(nil); err != nil {
		t.Fatalf("record latency: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("results not forwarded")
	}
}

func TestMultiSinkSkipsUnsupportedAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &taskOnlySink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordSnapshot(SnapshotEvent{}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := m.RecordTaskResult(TaskResultEvent{}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if s2.count != 1 {
		t.Fatalf("second sink skipped after first error")
	}
}
