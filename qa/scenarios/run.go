package scenarios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kilianp07/ocppbridge/core/correlate"
	"github.com/kilianp07/ocppbridge/core/dispatch"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/registry"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/infra/ocppj"
)

const answerWindow = 500 * time.Millisecond

// scriptedBox answers every CALL it receives according to its behaviour.
type scriptedBox struct {
	id        string
	behaviour Behaviour
	corr      *correlate.Correlator
}

func (b *scriptedBox) Kind() model.TransportKind { return model.TransportJSON }
func (b *scriptedBox) Close() error              { return nil }

func (b *scriptedBox) Send(_ context.Context, msg []byte) error {
	if b.behaviour == SendFail {
		return errors.New("socket closed")
	}
	f, err := ocppj.ParseFrame(msg)
	if err != nil {
		return err
	}
	id, err := task.ParseID(f.UniqueID)
	if err != nil {
		return err
	}
	go func() {
		switch b.behaviour {
		case Accept, "":
			b.corr.OnDeviceResponse(id, b.id, json.RawMessage(`{"status":"Accepted"}`))
		case Reject:
			b.corr.OnDeviceResponse(id, b.id, json.RawMessage(`{"status":"Rejected"}`))
		case Fail:
			b.corr.OnDeviceError(id, b.id, ocppj.ErrorInternalError, "scripted failure")
		}
	}()
	return nil
}

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	log := logger.NopLogger{}
	reg := registry.New(log)
	store := task.NewStore(task.Config{}, log)
	corr := correlate.New(store, nil, log)
	disp, err := dispatch.NewDispatcher(reg, store,
		map[model.TransportKind]dispatch.Encoder{model.TransportJSON: ocppj.Encoder{}},
		dispatch.Config{TimeoutSeconds: 1}, nil, log)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	for _, b := range sc.Boxes {
		if b.IsConnected() {
			reg.Register(b.ID, &scriptedBox{id: b.ID, behaviour: b.Behaviour, corr: corr})
		}
	}

	for i, step := range sc.Steps {
		if err := runStep(store, disp, step); err != nil {
			t.Errorf("scenario %s step %d (%s): %v", sc.Name, i, step.Kind, err)
		}
	}
}

func runStep(store *task.Store, disp *dispatch.Dispatcher, step StepDef) error {
	cmd, err := step.Command()
	if err != nil {
		if step.Expect.Error == "invalid" {
			return nil
		}
		return fmt.Errorf("decode command: %w", err)
	}
	before := store.Len()
	id, err := disp.Dispatch(context.Background(), cmd, step.Targets)
	if step.Expect.Error != "" {
		if !matchError(err, step.Expect.Error) {
			return fmt.Errorf("expected %s error, got %v", step.Expect.Error, err)
		}
		if store.Len() != before {
			return fmt.Errorf("task created despite %s", step.Expect.Error)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	v, err := store.Await(context.Background(), id, answerWindow)
	if err != nil {
		return err
	}
	if !v.Closed {
		// expire silent boxes without waiting for the real deadline
		store.Sweep(v.Deadline.Add(time.Millisecond))
		if v, err = store.Get(id); err != nil {
			return err
		}
	}
	return check(v, step.Expect)
}

func check(v task.View, want Expected) error {
	c := v.Counts()
	switch {
	case len(v.Slots) != want.Slots:
		return fmt.Errorf("slots: got %d want %d", len(v.Slots), want.Slots)
	case c[task.StateCompleted] != want.Completed:
		return fmt.Errorf("completed: got %d want %d", c[task.StateCompleted], want.Completed)
	case c[task.StateErrored] != want.Errored:
		return fmt.Errorf("errored: got %d want %d", c[task.StateErrored], want.Errored)
	case c[task.StateTimedOut] != want.TimedOut:
		return fmt.Errorf("timed out: got %d want %d", c[task.StateTimedOut], want.TimedOut)
	case !v.Closed:
		return fmt.Errorf("task %s still open", v.ID)
	case want.Result != "" && task.Result(v) != want.Result:
		return fmt.Errorf("result: got %s want %s", task.Result(v), want.Result)
	}
	return nil
}

func matchError(err error, name string) bool {
	switch name {
	case "not_connected":
		return errors.Is(err, registry.ErrNotConnected)
	case "no_targets":
		return errors.Is(err, dispatch.ErrNoTargets)
	case "invalid":
		return errors.Is(err, dispatch.ErrInvalidCommand)
	default:
		return false
	}
}
