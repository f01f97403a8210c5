package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/core/tasklog"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

type memLog struct{ recs []tasklog.Record }

func (m *memLog) Append(_ context.Context, r tasklog.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memLog) Query(_ context.Context, q tasklog.Query) ([]tasklog.Record, error) {
	var res []tasklog.Record
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memLog) Close() error { return nil }

func TestLogHandler_AuthAndFilters(t *testing.T) {
	now := time.Now().UTC()
	store := &memLog{}
	_ = store.Append(context.Background(), tasklog.Record{Timestamp: now, TaskID: 1, Kind: command.KindReset, Targets: []string{"cb-1"}})
	_ = store.Append(context.Background(), tasklog.Record{Timestamp: now, TaskID: 2, Kind: command.KindUnlockConnector, Targets: []string{"cb-2"}})

	tasks := task.NewStore(task.Config{}, logger.NopLogger{})
	h, err := NewHandler(&fakeDispatcher{store: tasks}, tasks, fakeDevices{}, Config{Token: "tok"}, logger.NopLogger{}, WithTaskLog(store))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	get := func(target string, auth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if auth {
			req.Header.Set("Authorization", "Bearer tok")
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/api/tasks/log?device_id=cb-1", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []tasklog.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].TaskID != 1 {
		t.Fatalf("unexpected records %+v", out)
	}

	rr = get("/api/tasks/log?kind=UnlockConnector", true)
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].TaskID != 2 {
		t.Fatalf("unexpected records %+v", out)
	}

	rr = get("/api/tasks/log?start="+now.Add(time.Hour).Format(time.RFC3339), true)
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty list, got %s", rr.Body.String())
	}

	if rr = get("/api/tasks/log?kind=Explode", true); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if rr = get("/api/tasks/log?end=yesterday", true); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if rr = get("/api/tasks/log", false); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestLogHandler_Disabled(t *testing.T) {
	tasks := task.NewStore(task.Config{}, logger.NopLogger{})
	h, err := NewHandler(&fakeDispatcher{store: tasks}, tasks, fakeDevices{{ID: "cb-1", Transport: model.TransportJSON}}, Config{}, logger.NopLogger{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks/log", nil))
	// falls through to the task lookup, "log" is not a task id
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}
