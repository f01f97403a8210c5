package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/dispatch"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/registry"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

type fakeDispatcher struct {
	store *task.Store
	err   error
	got   command.Command
}

func (f *fakeDispatcher) Dispatch(_ context.Context, cmd command.Command, targets []string) (task.ID, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.got = cmd
	v := f.store.Create(cmd.Kind(), targets, time.Now().Add(time.Minute))
	return v.ID, nil
}

type fakeDevices []model.Device

func (f fakeDevices) Devices() []model.Device { return f }

func newTestHandler(t *testing.T, d *fakeDispatcher, cfg Config) (*Handler, *task.Store) {
	t.Helper()
	store := task.NewStore(task.Config{}, logger.NopLogger{})
	d.store = store
	h, err := NewHandler(d, store, fakeDevices{{ID: "cb-1", Transport: model.TransportJSON, Connected: true}}, cfg, logger.NopLogger{})
	require.NoError(t, err)
	return h, store
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNewHandler_NilParams(t *testing.T) {
	_, err := NewHandler(nil, nil, nil, Config{}, nil)
	assert.Error(t, err)
}

func TestDispatch_Accepted(t *testing.T) {
	d := &fakeDispatcher{}
	h, store := newTestHandler(t, d, Config{})

	rr := do(h, http.MethodPost, "/api/tasks", `{"kind":"Reset","targets":["cb-1"],"payload":{"type":"Soft"}}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp DispatchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, task.ID(1), resp.TaskID)
	assert.Equal(t, command.Reset{Type: command.ResetSoft}, d.got)
	assert.Equal(t, 1, store.Len())
}

func TestDispatch_StatusCodes(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"unknown kind", `{"kind":"Explode","targets":["cb-1"]}`, nil, http.StatusBadRequest},
		{"bad payload", `{"kind":"Reset","targets":["cb-1"],"payload":{"type":1}}`, nil, http.StatusBadRequest},
		{"no targets", `{"kind":"Reset","payload":{"type":"Soft"}}`, dispatch.ErrNoTargets, http.StatusBadRequest},
		{"invalid command", `{"kind":"Reset","targets":["cb-1"]}`, fmt.Errorf("%w: type", dispatch.ErrInvalidCommand), http.StatusBadRequest},
		{"not connected", `{"kind":"Reset","targets":["cb-9"],"payload":{"type":"Hard"}}`, fmt.Errorf("%w: cb-9", registry.ErrNotConnected), http.StatusConflict},
		{"unexpected", `{"kind":"Reset","targets":["cb-1"],"payload":{"type":"Hard"}}`, fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, store := newTestHandler(t, &fakeDispatcher{err: tc.err}, Config{})
			rr := do(h, http.MethodPost, "/api/tasks", tc.body)
			assert.Equal(t, tc.want, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error"`)
			assert.Zero(t, store.Len())
		})
	}
}

func TestGetTask(t *testing.T) {
	h, store := newTestHandler(t, &fakeDispatcher{}, Config{})
	v := store.Create(command.KindReset, []string{"cb-1", "cb-2"}, time.Now().Add(time.Minute))

	rr := do(h, http.MethodGet, "/api/tasks/"+v.ID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got task.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, v.ID, got.ID)
	assert.Len(t, got.Slots, 2)
	assert.False(t, got.Closed)
	assert.Contains(t, rr.Body.String(), `"state":"Pending"`)
}

func TestGetTask_NotFound(t *testing.T) {
	h, _ := newTestHandler(t, &fakeDispatcher{}, Config{})
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/tasks/42", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/tasks/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/tasks/42?wait=1s", "").Code)
}

func TestGetTask_WaitReturnsOnClose(t *testing.T) {
	h, store := newTestHandler(t, &fakeDispatcher{}, Config{})
	v := store.Create(command.KindReset, []string{"cb-1"}, time.Now().Add(time.Minute))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = store.Resolve(v.ID, "cb-1", task.Completed(json.RawMessage(`{"status":"Accepted"}`)))
	}()

	start := time.Now()
	rr := do(h, http.MethodGet, "/api/tasks/"+v.ID.String()+"?wait=5s", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Less(t, time.Since(start), 4*time.Second)

	var got task.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.True(t, got.Closed)
	assert.Contains(t, rr.Body.String(), `"state":"Completed"`)
}

func TestGetTask_InvalidWait(t *testing.T) {
	h, store := newTestHandler(t, &fakeDispatcher{}, Config{})
	v := store.Create(command.KindReset, []string{"cb-1"}, time.Now().Add(time.Minute))
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/tasks/"+v.ID.String()+"?wait=soon", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/tasks/"+v.ID.String()+"?wait=-1s", "").Code)
}

func TestWaitIsCapped(t *testing.T) {
	h, _ := newTestHandler(t, &fakeDispatcher{}, Config{MaxWaitSeconds: 2})
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/1?wait=1h", nil)
	d, err := h.waitParam(req)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestChargePoints(t *testing.T) {
	h, _ := newTestHandler(t, &fakeDispatcher{}, Config{})
	rr := do(h, http.MethodGet, "/api/chargepoints", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"id":"cb-1","transport":"JSON","connected":true}]`, rr.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, &fakeDispatcher{}, Config{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodDelete, "/api/tasks", "").Code)
}

func TestBearerToken(t *testing.T) {
	h, _ := newTestHandler(t, &fakeDispatcher{}, Config{Token: "tok"})
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/chargepoints", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chargepoints", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDispatch_RateLimited(t *testing.T) {
	h, store := newTestHandler(t, &fakeDispatcher{}, Config{DispatchRate: 0.001, DispatchBurst: 1})
	body := `{"kind":"Reset","targets":["cb-1"],"payload":{"type":"Hard"}}`

	assert.Equal(t, http.StatusAccepted, do(h, http.MethodPost, "/api/tasks", body).Code)
	rr := do(h, http.MethodPost, "/api/tasks", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"dispatch rate exceeded"}`, rr.Body.String())
	assert.Equal(t, 1, store.Len())
}
