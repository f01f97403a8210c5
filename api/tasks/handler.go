// Package tasks exposes command dispatch and task retrieval over HTTP.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/dispatch"
	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/registry"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/core/tasklog"
)

const maxBodyBytes = 1 << 20

// Dispatcher issues commands. dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command, targets []string) (task.ID, error)
}

// Tasks gives read access to tasks. task.Store implements it.
type Tasks interface {
	Get(id task.ID) (task.View, error)
	Await(ctx context.Context, id task.ID, timeout time.Duration) (task.View, error)
}

// Devices lists connected charge boxes. registry.Registry implements it.
type Devices interface {
	Devices() []model.Device
}

// DispatchRequest is the body of POST /api/tasks.
type DispatchRequest struct {
	Kind    string          `json:"kind"`
	Targets []string        `json:"targets"`
	Payload json.RawMessage `json:"payload"`
}

// DispatchResponse is returned with 202 Accepted.
type DispatchResponse struct {
	TaskID task.ID `json:"task_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the task API.
type Handler struct {
	dispatcher Dispatcher
	tasks      Tasks
	devices    Devices
	taskLog    tasklog.Store
	limiter    *rate.Limiter
	cfg        Config
	log        logger.Logger
	mux        *http.ServeMux
}

// NewHandler wires the routes.
func NewHandler(d Dispatcher, t Tasks, devs Devices, cfg Config, log logger.Logger, opts ...HandlerOption) (*Handler, error) {
	if d == nil || t == nil || devs == nil || log == nil {
		return nil, fmt.Errorf("tasks: nil parameter provided to NewHandler")
	}
	cfg.SetDefaults()
	h := &Handler{dispatcher: d, tasks: t, devices: devs, cfg: cfg, log: log, mux: http.NewServeMux()}
	if cfg.DispatchRate > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), cfg.DispatchBurst)
	}
	for _, o := range opts {
		o(h)
	}
	if h.taskLog != nil {
		h.mux.HandleFunc("GET /api/tasks/log", h.logs)
	}
	h.mux.HandleFunc("POST /api/tasks", h.dispatch)
	h.mux.HandleFunc("GET /api/tasks/{id}", h.get)
	h.mux.HandleFunc("GET /api/chargepoints", h.chargePoints)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+h.cfg.Token {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "dispatch rate exceeded")
		return
	}
	var req DispatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	kind, err := command.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmd, err := command.DecodeCommand(kind, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.dispatcher.Dispatch(r.Context(), cmd, req.Targets)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNotConnected):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, dispatch.ErrNoTargets), errors.Is(err, dispatch.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.log.Errorf("dispatch %s: %v", kind, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, DispatchResponse{TaskID: id})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := task.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	wait, err := h.waitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var v task.View
	if wait > 0 {
		v, err = h.tasks.Await(r.Context(), id, wait)
	} else {
		v, err = h.tasks.Get(id)
	}
	switch {
	case err == nil:
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// client went away; nothing useful to write
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) waitParam(r *http.Request) (time.Duration, error) {
	s := strings.TrimSpace(r.URL.Query().Get("wait"))
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid wait %q", s)
	}
	if max := h.cfg.maxWait(); d > max {
		d = max
	}
	return d, nil
}

func (h *Handler) chargePoints(w http.ResponseWriter, _ *http.Request) {
	devs := h.devices.Devices()
	if devs == nil {
		devs = []model.Device{}
	}
	writeJSON(w, http.StatusOK, devs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
