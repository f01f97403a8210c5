package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const dropSampleInterval = 5 * time.Second

var busDropped *prometheus.CounterVec

func newBusCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_bus_dropped_total",
		Help: "Events not delivered to a full subscriber",
	}, []string{"bus"})
}

func init() {
	busDropped = newBusCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers event bus metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(busDropped)
}

// ResetMetrics reinitializes collectors for testing purposes and registers
// them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	busDropped = newBusCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

type dropCounter interface {
	Dropped() uint64
}

// dropSampler turns the cumulative drop counts of the buses into counter
// increments.
type dropSampler struct {
	buses map[string]dropCounter
	last  map[string]uint64
}

func newDropSampler(b Buses) *dropSampler {
	s := &dropSampler{buses: make(map[string]dropCounter), last: make(map[string]uint64)}
	if b.Tasks != nil {
		s.buses["tasks"] = b.Tasks
	}
	if b.Snapshots != nil {
		s.buses["snapshots"] = b.Snapshots
	}
	if b.Statuses != nil {
		s.buses["statuses"] = b.Statuses
	}
	return s
}

func (s *dropSampler) sample() {
	for name, b := range s.buses {
		n := b.Dropped()
		if d := n - s.last[name]; d > 0 {
			busDropped.WithLabelValues(name).Add(float64(d))
		}
		s.last[name] = n
	}
}

func (s *dropSampler) run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.sample()
			return
		case <-t.C:
			s.sample()
		}
	}
}
