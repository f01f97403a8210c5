package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
)

var phaseLabels = []string{"L1", "L2", "L3"}

// PromSink records task results and connector readings in Prometheus metrics.
type PromSink struct {
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	latency  *prometheus.HistogramVec
	power    *prometheus.GaugeVec
	energy   *prometheus.GaugeVec
	current  *prometheus.GaugeVec
	voltage  *prometheus.GaugeVec
	status   *prometheus.GaugeVec
}

// NewPromSink registers the sink collectors on the default Prometheus registerer.
// The /metrics server is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_results_total",
			Help: "Closed command tasks by kind and result",
		}, []string{"kind", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Time between dispatch and task close",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_answer_latency_seconds",
			Help:    "Time between dispatch and a device answer",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "state"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "connector_power_watts",
			Help: "Last reported active power import",
		}, []string{"device_id", "connector_id"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "connector_energy_wh",
			Help: "Last reported energy import register",
		}, []string{"device_id", "connector_id"}),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "connector_current_amperes",
			Help: "Last reported current import per phase",
		}, []string{"device_id", "connector_id", "phase"}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "connector_voltage_volts",
			Help: "Last reported voltage per phase",
		}, []string{"device_id", "connector_id", "phase"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "connector_status",
			Help: "Current connector status, 1 for the active status label",
		}, []string{"device_id", "connector_id", "status"}),
	}
	var err error
	if s.results, err = register(reg, s.results); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.power, err = register(reg, s.power); err != nil {
		return nil, err
	}
	if s.energy, err = register(reg, s.energy); err != nil {
		return nil, err
	}
	if s.current, err = register(reg, s.current); err != nil {
		return nil, err
	}
	if s.voltage, err = register(reg, s.voltage); err != nil {
		return nil, err
	}
	if s.status, err = register(reg, s.status); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordTaskResult counts the closed task and observes its duration.
func (s *PromSink) RecordTaskResult(ev coremetrics.TaskResultEvent) error {
	s.results.WithLabelValues(ev.Kind, ev.Result).Inc()
	s.duration.WithLabelValues(ev.Kind, ev.Result).Observe(ev.Duration.Seconds())
	return nil
}

// RecordSlotLatency observes answer latencies.
func (s *PromSink) RecordSlotLatency(lat []coremetrics.SlotLatency) error {
	for _, l := range lat {
		s.latency.WithLabelValues(l.Kind, l.State).Observe(l.Latency.Seconds())
	}
	return nil
}

// RecordSnapshot sets the connector gauges from the snapshot.
func (s *PromSink) RecordSnapshot(ev coremetrics.SnapshotEvent) error {
	conn := strconv.Itoa(ev.ConnectorID)
	s.power.WithLabelValues(ev.DeviceID, conn).Set(ev.Snapshot.Power)
	s.energy.WithLabelValues(ev.DeviceID, conn).Set(ev.Snapshot.Energy)
	for i, v := range ev.Snapshot.Current {
		if i < len(phaseLabels) {
			s.current.WithLabelValues(ev.DeviceID, conn, phaseLabels[i]).Set(v)
		}
	}
	for i, v := range ev.Snapshot.Voltage {
		if i < len(phaseLabels) {
			s.voltage.WithLabelValues(ev.DeviceID, conn, phaseLabels[i]).Set(v)
		}
	}
	return nil
}

// RecordStatus replaces the status series of the connector.
func (s *PromSink) RecordStatus(ev coremetrics.StatusEvent) error {
	conn := strconv.Itoa(ev.ConnectorID)
	s.status.DeletePartialMatch(prometheus.Labels{"device_id": ev.DeviceID, "connector_id": conn})
	s.status.WithLabelValues(ev.DeviceID, conn, ev.Status.Status).Set(1)
	return nil
}

