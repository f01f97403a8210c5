package correlate

import "github.com/prometheus/client_golang/prometheus"

var resolutions *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_resolutions_total",
			Help: "Device answers processed by outcome",
		},
		[]string{"outcome"},
	)
}

func init() {
	resolutions = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers correlator metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(resolutions)
}

// ResetMetrics reinitializes collectors for testing purposes.
func ResetMetrics(reg prometheus.Registerer) {
	resolutions = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
