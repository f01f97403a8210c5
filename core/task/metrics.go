package task

import "github.com/prometheus/client_golang/prometheus"

var (
	openTasks       prometheus.Gauge
	closedTasks     *prometheus.CounterVec
	slotResolutions *prometheus.CounterVec
	evictedTasks    prometheus.Counter
)

func newCollectors() (prometheus.Gauge, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter) {
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tasks_open",
		Help: "Number of tasks with at least one pending slot",
	})
	closed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_closed_total",
			Help: "Closed tasks by kind and overall result",
		},
		[]string{"kind", "result"},
	)
	slots := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_slot_resolutions_total",
			Help: "Result slot transitions by terminal state",
		},
		[]string{"state"},
	)
	evicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tasks_evicted_total",
		Help: "Tasks removed from the store",
	})
	return open, closed, slots, evicted
}

func init() {
	openTasks, closedTasks, slotResolutions, evictedTasks = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers task metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(openTasks, closedTasks, slotResolutions, evictedTasks)
}

// ResetMetrics reinitializes collectors for testing purposes and registers
// them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	openTasks, closedTasks, slotResolutions, evictedTasks = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

// Result summarises a closed view as completed, partial, errored or timed_out.
func Result(v View) string {
	c := v.Counts()
	switch {
	case c[StateCompleted] == len(v.Slots):
		return "completed"
	case c[StateCompleted] > 0:
		return "partial"
	case c[StateTimedOut] > 0:
		return "timed_out"
	default:
		return "errored"
	}
}

func recordClosed(v View) {
	closedTasks.WithLabelValues(string(v.Kind), Result(v)).Inc()
}
