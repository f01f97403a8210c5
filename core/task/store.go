// Package task keeps outstanding and recently closed command tasks and their
// per-device result slots.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/logger"
)

var (
	// ErrNotFound is returned for ids that are unknown or already evicted.
	ErrNotFound = errors.New("task not found")
	// ErrUnknownDevice is returned when a device was not targeted by the task.
	ErrUnknownDevice = errors.New("device not targeted by task")
	// ErrInvalidOutcome is returned when resolving a slot back to pending.
	ErrInvalidOutcome = errors.New("invalid outcome")
)

const (
	DefaultRetention     = 10 * time.Minute
	DefaultMaxAge        = time.Hour
	DefaultSweepInterval = time.Second
)

// Config tunes the store retention windows.
type Config struct {
	Retention     time.Duration `json:"retention"`
	MaxAge        time.Duration `json:"max_age"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
}

type entry struct {
	id       ID
	kind     command.Kind
	created  time.Time
	deadline time.Time
	targets  []string
	slots    map[string]*Slot
	closedAt time.Time
	done     chan struct{}
}

func (e *entry) closed() bool { return !e.closedAt.IsZero() }

func (e *entry) pending() int {
	n := 0
	for _, s := range e.slots {
		if s.State == StatePending {
			n++
		}
	}
	return n
}

func (e *entry) view() View {
	v := View{
		ID:       e.id,
		Kind:     e.kind,
		Created:  e.created,
		Deadline: e.deadline,
		Closed:   e.closed(),
		Slots:    make([]Slot, 0, len(e.targets)),
	}
	if v.Closed {
		t := e.closedAt
		v.ClosedAt = &t
	}
	for _, id := range e.targets {
		s := *e.slots[id]
		if s.ResolvedAt != nil {
			t := *s.ResolvedAt
			s.ResolvedAt = &t
		}
		if s.Payload != nil {
			s.Payload = append([]byte(nil), s.Payload...)
		}
		v.Slots = append(v.Slots, s)
	}
	return v
}

// Store is the single owner of task state. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	tasks   map[ID]*entry
	nextID  ID
	open    int
	cfg     Config
	now     func() time.Time
	log     logger.Logger
	hooksMu sync.RWMutex
	onClose []func(View)
}

// NewStore creates an empty store.
func NewStore(cfg Config, log logger.Logger) *Store {
	cfg.SetDefaults()
	return &Store{
		tasks: make(map[ID]*entry),
		cfg:   cfg,
		now:   time.Now,
		log:   log,
	}
}

// OnClose registers fn to be called with the view of every task that closes.
// Hooks run on the goroutine that closed the task, outside the store lock.
func (s *Store) OnClose(fn func(View)) {
	if fn == nil {
		return
	}
	s.hooksMu.Lock()
	s.onClose = append(s.onClose, fn)
	s.hooksMu.Unlock()
}

func (s *Store) fireClosed(views []View) {
	if len(views) == 0 {
		return
	}
	s.hooksMu.RLock()
	hooks := append([]func(View){}, s.onClose...)
	s.hooksMu.RUnlock()
	for _, v := range views {
		recordClosed(v)
		for _, h := range hooks {
			h(v)
		}
	}
}

// Create registers a task with one pending slot per target. Targets must be
// distinct and non-empty; callers deduplicate.
func (s *Store) Create(kind command.Kind, targets []string, deadline time.Time) View {
	now := s.now()
	e := &entry{
		kind:     kind,
		created:  now,
		deadline: deadline,
		targets:  append([]string(nil), targets...),
		slots:    make(map[string]*Slot, len(targets)),
		done:     make(chan struct{}),
	}
	for _, t := range targets {
		e.slots[t] = &Slot{DeviceID: t, State: StatePending}
	}
	s.mu.Lock()
	s.nextID++
	e.id = s.nextID
	s.tasks[e.id] = e
	s.open++
	openTasks.Set(float64(s.open))
	v := e.view()
	s.mu.Unlock()
	return v
}

// Get returns the current view of a task.
func (s *Store) Get(id ID) (View, error) {
	s.mu.RLock()
	e, ok := s.tasks[id]
	if !ok {
		s.mu.RUnlock()
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	if e.closed() || now.Before(e.deadline) {
		v := e.view()
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	closed := s.expireLocked(e, now, false)
	v := e.view()
	s.mu.Unlock()
	if closed {
		s.fireClosed([]View{v})
	}
	return v, nil
}

// Await blocks until the task closes, timeout elapses or ctx is done and then
// returns the current view. An elapsed timeout is not an error. Abandoning
// the wait has no effect on the task.
func (s *Store) Await(ctx context.Context, id ID, timeout time.Duration) (View, error) {
	s.mu.RLock()
	e, ok := s.tasks[id]
	var done <-chan struct{}
	var deadline time.Time
	if ok {
		done = e.done
		deadline = e.deadline
	}
	s.mu.RUnlock()
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if timeout <= 0 {
		return s.viewOf(e)
	}

	wait := timeout
	if untilDeadline := deadline.Sub(s.now()); untilDeadline < wait {
		wait = untilDeadline
		if wait < 0 {
			wait = 0
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
		v, _ := s.viewOf(e)
		return v, ctx.Err()
	}
	return s.viewOf(e)
}

// viewOf returns the view of e, expiring it if its deadline passed. It works
// on evicted entries too so a waiter still gets the final state.
func (s *Store) viewOf(e *entry) (View, error) {
	now := s.now()
	s.mu.Lock()
	closed := s.expireLocked(e, now, false)
	v := e.view()
	s.mu.Unlock()
	if closed {
		s.fireClosed([]View{v})
	}
	return v, nil
}

// Resolve writes the outcome of one slot. It is the only path that mutates
// a slot. A terminal slot is never overwritten. An answer for a slot past
// its deadline expires it if needed and gets TimedOut.
func (s *Store) Resolve(id ID, deviceID string, out Outcome) (ResolveResult, error) {
	if out.State == StatePending {
		return AlreadyResolved, ErrInvalidOutcome
	}
	now := s.now()
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return AlreadyResolved, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	slot, ok := e.slots[deviceID]
	if !ok {
		s.mu.Unlock()
		return AlreadyResolved, fmt.Errorf("%w: task %s device %s", ErrUnknownDevice, id, deviceID)
	}
	var closedViews []View
	res := AlreadyResolved
	if s.expireLocked(e, now, false) {
		closedViews = append(closedViews, e.view())
	}
	switch slot.State {
	case StateTimedOut:
		res = TimedOut
	case StatePending:
		slot.State = out.State
		slot.Payload = out.Payload
		slot.ErrorCode = out.Code
		slot.ErrorMessage = out.Message
		slot.ResolvedAt = &now
		res = Applied
		slotResolutions.WithLabelValues(out.State.String()).Inc()
		if e.pending() == 0 {
			s.closeLocked(e, now)
			closedViews = append(closedViews, e.view())
		}
	}
	s.mu.Unlock()
	s.fireClosed(closedViews)
	return res, nil
}

// expireLocked times out the pending slots of an open task past its
// deadline, or regardless of the deadline when force is set. It reports
// whether the task was closed by this call.
func (s *Store) expireLocked(e *entry, now time.Time, force bool) bool {
	if e.closed() || (!force && now.Before(e.deadline)) {
		return false
	}
	for _, sl := range e.slots {
		if sl.State == StatePending {
			sl.State = StateTimedOut
			t := now
			sl.ResolvedAt = &t
			slotResolutions.WithLabelValues(StateTimedOut.String()).Inc()
		}
	}
	s.closeLocked(e, now)
	return true
}

func (s *Store) closeLocked(e *entry, now time.Time) {
	e.closedAt = now
	close(e.done)
	if s.tasks[e.id] == e {
		s.open--
		openTasks.Set(float64(s.open))
	}
}

// Evict removes a task. Waiters already blocked in Await are not affected.
func (s *Store) Evict(id ID) {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
		if !e.closed() {
			s.open--
			openTasks.Set(float64(s.open))
		}
	}
	s.mu.Unlock()
	if ok {
		evictedTasks.Inc()
	}
}

// Sweep times out tasks past their deadline and evicts tasks that closed
// longer than the retention window ago or exceeded the max age.
func (s *Store) Sweep(now time.Time) (closed, evicted int) {
	var views []View
	s.mu.Lock()
	for id, e := range s.tasks {
		tooOld := now.Sub(e.created) >= s.cfg.MaxAge
		if s.expireLocked(e, now, tooOld) {
			views = append(views, e.view())
		}
		if tooOld || (e.closed() && now.Sub(e.closedAt) >= s.cfg.Retention) {
			delete(s.tasks, id)
			evicted++
		}
	}
	s.mu.Unlock()
	if evicted > 0 {
		evictedTasks.Add(float64(evicted))
		s.log.Debugf("task sweep evicted %d tasks", evicted)
	}
	s.fireClosed(views)
	return len(views), evicted
}

// Run sweeps the store every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Len returns the number of tasks held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
