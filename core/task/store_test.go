package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

func newTestStore() *Store {
	return NewStore(Config{}, logger.NopLogger{})
}

func TestCreateAllocatesPendingSlots(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a", "b", "c"}, time.Now().Add(time.Minute))
	assert.Equal(t, ID(1), v.ID)
	require.Len(t, v.Slots, 3)
	for _, sl := range v.Slots {
		assert.Equal(t, StatePending, sl.State)
		assert.Nil(t, sl.ResolvedAt)
	}
	assert.False(t, v.Closed)

	v2 := s.Create(command.KindReset, []string{"a"}, time.Now().Add(time.Minute))
	assert.Equal(t, ID(2), v2.ID)
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore()
	_, err := s.Get(42)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Await(context.Background(), 42, time.Millisecond)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolveIsMonotonic(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a", "b"}, time.Now().Add(time.Minute))

	res, err := s.Resolve(v.ID, "a", Completed(json.RawMessage(`{"status":"Accepted"}`)))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	res, err = s.Resolve(v.ID, "a", Errored("InternalError", "late"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyResolved, res)

	got, err := s.Get(v.ID)
	require.NoError(t, err)
	slot, ok := got.Slot("a")
	require.True(t, ok)
	assert.Equal(t, StateCompleted, slot.State)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(slot.Payload))
	assert.False(t, got.Closed)

	_, err = s.Resolve(v.ID, "zzz", Completed(nil))
	assert.True(t, errors.Is(err, ErrUnknownDevice))
	_, err = s.Resolve(99, "a", Completed(nil))
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Resolve(v.ID, "b", Outcome{State: StatePending})
	assert.True(t, errors.Is(err, ErrInvalidOutcome))
}

func TestTaskClosesWhenAllSlotsResolved(t *testing.T) {
	s := newTestStore()
	var mu sync.Mutex
	var closed []View
	s.OnClose(func(v View) {
		mu.Lock()
		closed = append(closed, v)
		mu.Unlock()
	})
	v := s.Create(command.KindReset, []string{"a", "b"}, time.Now().Add(time.Minute))
	_, err := s.Resolve(v.ID, "a", Completed(nil))
	require.NoError(t, err)
	_, err = s.Resolve(v.ID, "b", Errored("NotSupported", "nope"))
	require.NoError(t, err)

	got, err := s.Get(v.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, "partial", Result(got))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, closed, 1)
	assert.Equal(t, v.ID, closed[0].ID)
}

func TestAwaitReturnsEarlyWhenResolved(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a"}, time.Now().Add(time.Minute))
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = s.Resolve(v.ID, "a", Completed(nil))
	}()
	start := time.Now()
	got, err := s.Await(context.Background(), v.ID, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwaitTimeoutReturnsCurrentView(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a", "b"}, time.Now().Add(time.Minute))
	_, err := s.Resolve(v.ID, "a", Completed(nil))
	require.NoError(t, err)

	start := time.Now()
	got, err := s.Await(context.Background(), v.ID, 50*time.Millisecond)
	require.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, got.Closed)
	assert.Equal(t, 1, got.Counts()[StatePending])

	// abandoning the wait leaves the task usable
	res, err := s.Resolve(v.ID, "b", Completed(nil))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
}

func TestAwaitStopsAtDeadline(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a"}, time.Now().Add(30*time.Millisecond))
	got, err := s.Await(context.Background(), v.ID, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	assert.Equal(t, StateTimedOut, got.Slots[0].State)

	res, err := s.Resolve(v.ID, "a", Completed(nil))
	require.NoError(t, err)
	assert.Equal(t, TimedOut, res)
}

func TestResolvePastDeadlineBeforeSweep(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a", "b"}, time.Now().Add(-time.Millisecond))

	res, err := s.Resolve(v.ID, "a", Completed(nil))
	require.NoError(t, err)
	assert.Equal(t, TimedOut, res)
	assert.Equal(t, "timed_out", res.String())

	got, err := s.Get(v.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	for _, sl := range got.Slots {
		assert.Equal(t, StateTimedOut, sl.State)
	}
}

func TestAwaitContextCancel(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a"}, time.Now().Add(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := s.Await(ctx, v.ID, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, v.ID, got.ID)
}

func TestSweepTimesOutAndEvicts(t *testing.T) {
	s := NewStore(Config{Retention: time.Minute, MaxAge: time.Hour}, logger.NopLogger{})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	late := s.Create(command.KindReset, []string{"a"}, base.Add(30*time.Second))
	fresh := s.Create(command.KindReset, []string{"a"}, base.Add(10*time.Minute))

	closed, evicted := s.Sweep(base.Add(31 * time.Second))
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, evicted)

	got, err := s.Get(late.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	assert.Equal(t, StateTimedOut, got.Slots[0].State)

	_, evicted = s.Sweep(base.Add(2 * time.Minute))
	assert.Equal(t, 1, evicted)
	_, err = s.Get(late.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Get(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestSweepMaxAge(t *testing.T) {
	s := NewStore(Config{Retention: time.Minute, MaxAge: time.Hour}, logger.NopLogger{})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	var closed []View
	s.OnClose(func(v View) { closed = append(closed, v) })
	v := s.Create(command.KindReset, []string{"a"}, base.Add(48*time.Hour))

	_, evicted := s.Sweep(base.Add(2 * time.Hour))
	assert.Equal(t, 1, evicted)
	require.Len(t, closed, 1)
	assert.Equal(t, v.ID, closed[0].ID)
	assert.Equal(t, "timed_out", Result(closed[0]))
}

func TestEvict(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a"}, time.Now().Add(time.Minute))
	s.Evict(v.ID)
	_, err := s.Get(v.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConcurrentResolve(t *testing.T) {
	s := newTestStore()
	targets := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	v := s.Create(command.KindReset, targets, time.Now().Add(time.Minute))
	var wg sync.WaitGroup
	applied := make(chan ResolveResult, len(targets)*4)
	for i := 0; i < 4; i++ {
		for _, d := range targets {
			wg.Add(1)
			go func(d string) {
				defer wg.Done()
				res, err := s.Resolve(v.ID, d, Completed(nil))
				if err == nil {
					applied <- res
				}
			}(d)
		}
	}
	wg.Wait()
	close(applied)
	n := 0
	for r := range applied {
		if r == Applied {
			n++
		}
	}
	assert.Equal(t, len(targets), n)
	got, err := s.Get(v.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	assert.Equal(t, "completed", Result(got))
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindReset, []string{"a"}, time.Now().Add(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool {
		got, err := s.Get(v.ID)
		return err == nil && got.Closed
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestViewResponse(t *testing.T) {
	s := newTestStore()
	v := s.Create(command.KindGetConfiguration, []string{"a"}, time.Now().Add(time.Minute))
	_, err := s.Resolve(v.ID, "a", Completed(json.RawMessage(`{"configurationKey":[{"key":"HeartbeatInterval","readonly":false,"value":"300"}]}`)))
	require.NoError(t, err)
	got, err := s.Get(v.ID)
	require.NoError(t, err)
	resp, err := got.Response("a")
	require.NoError(t, err)
	cfg, ok := resp.(command.GetConfigurationResponse)
	require.True(t, ok)
	require.Len(t, cfg.ConfigurationKey, 1)
	assert.Equal(t, "HeartbeatInterval", cfg.ConfigurationKey[0].Key)

	_, err = got.Response("b")
	assert.True(t, errors.Is(err, ErrUnknownDevice))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("17")
	require.NoError(t, err)
	assert.Equal(t, ID(17), id)
	assert.Equal(t, "17", id.String())
	_, err = ParseID("abc")
	assert.Error(t, err)
	_, err = ParseID("0")
	assert.Error(t, err)
}
