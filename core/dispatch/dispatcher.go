// Package dispatch turns a command and a set of target charge boxes into a
// task and sends one frame per target.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/events"
	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/monitoring"
	"github.com/kilianp07/ocppbridge/core/registry"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

// CodeSendFailed is the slot error code used when a frame could not be
// delivered to the device channel.
const CodeSendFailed = "SendFailed"

var (
	// ErrNoTargets is returned when Dispatch is called without targets.
	ErrNoTargets = errors.New("no targets")
	// ErrInvalidCommand is returned when the command payload fails validation.
	ErrInvalidCommand = errors.New("invalid command")
)

// Sender routes frames to connected devices. registry.Registry implements it.
type Sender interface {
	IsConnected(deviceID string) bool
	Transport(deviceID string) (model.TransportKind, bool)
	Send(ctx context.Context, deviceID string, kind model.TransportKind, msg []byte) error
}

// Encoder renders the wire frame of a command for one device.
type Encoder interface {
	Encode(id task.ID, deviceID string, cmd command.Command) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(id task.ID, deviceID string, cmd command.Command) ([]byte, error)

func (f EncoderFunc) Encode(id task.ID, deviceID string, cmd command.Command) ([]byte, error) {
	return f(id, deviceID, cmd)
}

// Dispatcher issues commands. It is safe for concurrent use.
type Dispatcher struct {
	sender   Sender
	store    *task.Store
	encoders map[model.TransportKind]Encoder
	cfg      Config
	bus      *eventbus.Bus[events.TaskEvent]
	logger   logger.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(sender Sender, store *task.Store, encoders map[model.TransportKind]Encoder, cfg Config, bus *eventbus.Bus[events.TaskEvent], log logger.Logger) (*Dispatcher, error) {
	if sender == nil || store == nil || len(encoders) == 0 || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewDispatcher")
	}
	cfg.SetDefaults()
	enc := make(map[model.TransportKind]Encoder, len(encoders))
	for k, e := range encoders {
		enc[k] = e
	}
	return &Dispatcher{
		sender:   sender,
		store:    store,
		encoders: enc,
		cfg:      cfg,
		bus:      bus,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Dispatch validates the request, registers a task with one pending slot per
// distinct target and sends the frames. It returns once every frame was
// handed to its channel, without waiting for device answers. No task is
// created when an error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command, targets []string) (task.ID, error) {
	targets = distinct(targets)
	if len(targets) == 0 {
		return 0, ErrNoTargets
	}
	if cmd == nil {
		return 0, fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	for _, id := range targets {
		if !d.sender.IsConnected(id) {
			return 0, fmt.Errorf("%w: %s", registry.ErrNotConnected, id)
		}
	}

	kind := cmd.Kind()
	v := d.store.Create(kind, targets, d.now().Add(d.cfg.timeout()))
	commandsTotal.WithLabelValues(string(kind)).Inc()
	d.publish(events.TaskEvent{TaskID: uint64(v.ID), Kind: kind, Action: events.ActionDispatched, Targets: targets, Time: v.Created})
	d.logger.Infow("dispatching command", map[string]any{"task_id": v.ID.String(), "kind": string(kind), "targets": len(targets)})

	var wg sync.WaitGroup
	for _, id := range targets {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()
			if err := d.send(ctx, v.ID, deviceID, cmd); err != nil {
				d.fail(v.ID, kind, deviceID, err)
			}
		}(id)
	}
	wg.Wait()
	return v.ID, nil
}

func (d *Dispatcher) send(ctx context.Context, id task.ID, deviceID string, cmd command.Command) error {
	transport, ok := d.sender.Transport(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrNotConnected, deviceID)
	}
	enc, ok := d.encoders[transport]
	if !ok {
		return fmt.Errorf("no encoder for transport %s", transport)
	}
	frame, err := enc.Encode(id, deviceID, cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Kind(), err)
	}
	sctx, cancel := context.WithTimeout(ctx, d.cfg.sendTimeout())
	defer cancel()
	return d.sender.Send(sctx, deviceID, transport, frame)
}

// fail marks the slot of deviceID as errored immediately.
func (d *Dispatcher) fail(id task.ID, kind command.Kind, deviceID string, err error) {
	sendFailures.WithLabelValues(string(kind)).Inc()
	d.logger.Warnw("command send failed", map[string]any{"task_id": id.String(), "device_id": deviceID, "error": err.Error()})
	monitoring.CaptureException(err, map[string]string{"module": "dispatch", "device_id": deviceID})
	res, rerr := d.store.Resolve(id, deviceID, task.Errored(CodeSendFailed, err.Error()))
	if rerr != nil {
		d.logger.Errorf("record send failure of task %s: %v", id, rerr)
		return
	}
	if res == task.Applied {
		d.publish(events.TaskEvent{TaskID: uint64(id), Kind: kind, Action: events.ActionResolved, DeviceID: deviceID, State: task.StateErrored.String(), Time: d.now()})
	}
}

func (d *Dispatcher) publish(e events.TaskEvent) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}

// distinct drops empty and repeated ids keeping first occurrence order.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}
