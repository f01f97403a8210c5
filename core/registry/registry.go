// Package registry tracks which charge boxes currently hold an open channel
// and routes outbound frames to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
)

var (
	// ErrNotConnected is returned when a device has no active channel.
	ErrNotConnected = errors.New("device not connected")
	// ErrTransportMismatch is returned when a frame targets a channel of another transport kind.
	ErrTransportMismatch = errors.New("transport kind mismatch")
)

// Channel is an established bidirectional link to one device.
type Channel interface {
	Kind() model.TransportKind
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	log      logger.Logger
}

// New creates an empty registry.
func New(log logger.Logger) *Registry {
	return &Registry{channels: make(map[string]Channel), log: log}
}

// Register attaches ch to deviceID. An existing channel for the same device
// is closed and replaced.
func (r *Registry) Register(deviceID string, ch Channel) {
	r.mu.Lock()
	old := r.channels[deviceID]
	r.channels[deviceID] = ch
	n := len(r.channels)
	r.mu.Unlock()
	connectedDevices.Set(float64(n))
	if old != nil && old != ch {
		r.log.Warnf("device %s reconnected, closing previous channel", deviceID)
		if err := old.Close(); err != nil {
			r.log.Debugf("close previous channel of %s: %v", deviceID, err)
		}
	}
	r.log.Infow("device connected", map[string]any{"device_id": deviceID, "transport": ch.Kind().String()})
}

// Unregister detaches ch from deviceID. It is a no-op when deviceID is
// bound to a different channel, so a late close of a replaced connection
// cannot drop its successor.
func (r *Registry) Unregister(deviceID string, ch Channel) {
	r.mu.Lock()
	cur, ok := r.channels[deviceID]
	if ok && cur == ch {
		delete(r.channels, deviceID)
	}
	n := len(r.channels)
	r.mu.Unlock()
	connectedDevices.Set(float64(n))
	if ok && cur == ch {
		r.log.Infow("device disconnected", map[string]any{"device_id": deviceID})
	}
}

// IsConnected reports whether deviceID has an active channel.
func (r *Registry) IsConnected(deviceID string) bool {
	r.mu.RLock()
	_, ok := r.channels[deviceID]
	r.mu.RUnlock()
	return ok
}

// Transport returns the transport kind of the active channel of deviceID.
func (r *Registry) Transport(deviceID string) (model.TransportKind, bool) {
	r.mu.RLock()
	ch, ok := r.channels[deviceID]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return ch.Kind(), true
}

// Send writes msg to the device channel.
func (r *Registry) Send(ctx context.Context, deviceID string, kind model.TransportKind, msg []byte) error {
	r.mu.RLock()
	ch, ok := r.channels[deviceID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}
	if ch.Kind() != kind {
		return fmt.Errorf("%w: %s uses %s, frame is %s", ErrTransportMismatch, deviceID, ch.Kind(), kind)
	}
	if err := ch.Send(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", deviceID, err)
	}
	return nil
}

// Devices returns the connected devices sorted by id.
func (r *Registry) Devices() []model.Device {
	r.mu.RLock()
	res := make([]model.Device, 0, len(r.channels))
	for id, ch := range r.channels {
		res = append(res, model.Device{ID: id, Transport: ch.Kind(), Connected: true})
	}
	r.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Close closes every channel and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	chans := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()
	connectedDevices.Set(0)
	var errs []error
	for id, ch := range chans {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
