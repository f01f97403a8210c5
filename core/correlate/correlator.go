// Package correlate matches out-of-band device answers to task slots.
package correlate

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kilianp07/ocppbridge/core/events"
	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

// Resolution outcomes recorded by the correlator.
const (
	OutcomeCompleted     = "completed"
	OutcomeErrored       = "errored"
	OutcomeDuplicate     = "duplicate"
	OutcomeLate          = "late"
	OutcomeUnknownTask   = "unknown_task"
	OutcomeUnknownDevice = "unknown_device"
)

// Correlator is called from transport goroutines. Its methods never block on
// anything but the store lock and never return errors to the transport.
type Correlator struct {
	store  *task.Store
	bus    *eventbus.Bus[events.TaskEvent]
	logger logger.Logger
	now    func() time.Time
}

// New creates a correlator resolving slots of store. bus may be nil.
func New(store *task.Store, bus *eventbus.Bus[events.TaskEvent], log logger.Logger) *Correlator {
	return &Correlator{store: store, bus: bus, logger: log, now: time.Now}
}

// OnDeviceResponse records a successful device answer.
func (c *Correlator) OnDeviceResponse(taskID task.ID, deviceID string, raw json.RawMessage) string {
	return c.resolve(taskID, deviceID, task.Completed(raw))
}

// OnDeviceError records a device error answer.
func (c *Correlator) OnDeviceError(taskID task.ID, deviceID, code, message string) string {
	return c.resolve(taskID, deviceID, task.Errored(code, message))
}

func (c *Correlator) resolve(taskID task.ID, deviceID string, out task.Outcome) string {
	fields := map[string]any{"task_id": taskID.String(), "device_id": deviceID}
	res, err := c.store.Resolve(taskID, deviceID, out)
	outcome := ""
	switch {
	case errors.Is(err, task.ErrNotFound):
		outcome = OutcomeUnknownTask
		c.logger.Debugw("answer for unknown task dropped", fields)
	case errors.Is(err, task.ErrUnknownDevice):
		outcome = OutcomeUnknownDevice
		c.logger.Warnw("answer from device not targeted by task", fields)
	case err != nil:
		c.logger.Errorf("resolve task %s device %s: %v", taskID, deviceID, err)
		return ""
	case res == task.TimedOut:
		outcome = OutcomeLate
		c.logger.Warnw("answer arrived after deadline", fields)
	case res == task.AlreadyResolved:
		outcome = OutcomeDuplicate
		c.logger.Warnw("answer for already resolved slot ignored", fields)
	default:
		outcome = OutcomeCompleted
		if out.State == task.StateErrored {
			outcome = OutcomeErrored
		}
		c.publish(taskID, deviceID, out.State)
	}
	resolutions.WithLabelValues(outcome).Inc()
	return outcome
}

func (c *Correlator) publish(taskID task.ID, deviceID string, state task.State) {
	if c.bus == nil {
		return
	}
	ev := events.TaskEvent{
		TaskID:   uint64(taskID),
		Action:   events.ActionResolved,
		DeviceID: deviceID,
		State:    state.String(),
		Time:     c.now(),
	}
	if v, err := c.store.Get(taskID); err == nil {
		ev.Kind = v.Kind
	}
	c.bus.Publish(ev)
}
