package tasks

import (
	"net/http"
	"time"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/tasklog"
)

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithTaskLog exposes the audit trail via GET /api/tasks/log.
func WithTaskLog(store tasklog.Store) HandlerOption {
	return func(h *Handler) { h.taskLog = store }
}

// taskLogQuery reads start, end, device_id and kind filters. Timestamps are RFC3339.
func taskLogQuery(r *http.Request) (tasklog.Query, error) {
	var q tasklog.Query
	vals := r.URL.Query()
	for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := vals.Get(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, err
		}
		*dst = t
	}
	q.DeviceID = vals.Get("device_id")
	if s := vals.Get("kind"); s != "" {
		k, err := command.ParseKind(s)
		if err != nil {
			return q, err
		}
		q.Kind = k
	}
	return q, nil
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	q, err := taskLogQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.taskLog.Query(r.Context(), q)
	if err != nil {
		h.log.Errorf("task log query: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []tasklog.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}
