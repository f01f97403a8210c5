// Package transaction records charging sessions so a stop notification can
// be traced back to its connector.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for unknown transaction ids.
	ErrNotFound = errors.New("transaction not found")
	// ErrOtherDevice is returned when a device refers to a session it does not own.
	ErrOtherDevice = errors.New("transaction belongs to another device")
)

// Transaction is one charging session on a connector.
type Transaction struct {
	ID          int        `json:"id"`
	DeviceID    string     `json:"device_id"`
	ConnectorID int        `json:"connector_id"`
	IDTag       string     `json:"id_tag"`
	MeterStart  int        `json:"meter_start"`
	StartedAt   time.Time  `json:"started_at"`
	MeterStop   *int       `json:"meter_stop,omitempty"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}

// Active reports whether the session has not been stopped yet.
func (t Transaction) Active() bool { return t.StoppedAt == nil }

// Lookup returns transaction id when it was started by deviceID.
func Lookup(ctx context.Context, g Getter, deviceID string, id int) (Transaction, error) {
	tx, err := g.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if tx.DeviceID != deviceID {
		return Transaction{}, fmt.Errorf("%w: %d is owned by %s", ErrOtherDevice, id, tx.DeviceID)
	}
	return tx, nil
}

// Getter reads one transaction.
type Getter interface {
	Get(ctx context.Context, id int) (Transaction, error)
}

// Store persists transactions. Start assigns the id.
type Store interface {
	Getter
	Start(ctx context.Context, tx Transaction) (Transaction, error)
	Stop(ctx context.Context, id, meterStop int, ts time.Time) (Transaction, error)
	Close() error
}

// DefaultRetention is how long MemoryStore keeps a stopped session.
const DefaultRetention = 24 * time.Hour

// MemoryStore keeps transactions in memory. Stopped sessions are dropped
// once they are older than the retention window.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int
	txs       map[int]Transaction
	stopped   map[int]time.Time
	retention time.Duration
	now       func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithRetention sets how long stopped sessions are kept.
func WithRetention(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if d > 0 {
			m.retention = d
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		txs:       make(map[int]Transaction),
		stopped:   make(map[int]time.Time),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryStore) Start(_ context.Context, tx Transaction) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	m.nextID++
	tx.ID = m.nextID
	tx.MeterStop = nil
	tx.StoppedAt = nil
	m.txs[tx.ID] = tx
	return tx, nil
}

func (m *MemoryStore) Stop(_ context.Context, id, meterStop int, ts time.Time) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	tx, ok := m.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	tx.MeterStop = &meterStop
	tx.StoppedAt = &ts
	m.txs[id] = tx
	if _, seen := m.stopped[id]; !seen {
		m.stopped[id] = m.now()
	}
	return tx, nil
}

func (m *MemoryStore) Get(_ context.Context, id int) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

// Len returns the number of sessions held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

func (m *MemoryStore) pruneLocked() {
	cutoff := m.now().Add(-m.retention)
	for id, at := range m.stopped {
		if at.Before(cutoff) {
			delete(m.txs, id)
			delete(m.stopped, id)
		}
	}
}

func (m *MemoryStore) Close() error { return nil }
