package registry

import "github.com/prometheus/client_golang/prometheus"

var connectedDevices prometheus.Gauge

func newCollectors() prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_connected_devices",
		Help: "Number of charge boxes with an open channel",
	})
}

func init() {
	connectedDevices = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers registry metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(connectedDevices)
}

// ResetMetrics reinitializes collectors for testing purposes and registers
// them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	connectedDevices = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
