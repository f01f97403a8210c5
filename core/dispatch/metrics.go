package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	commandsTotal *prometheus.CounterVec
	sendFailures  *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec) {
	cmds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_commands_total",
			Help: "Number of dispatched commands",
		},
		[]string{"kind"},
	)
	fail := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_send_failures_total",
			Help: "Number of frames that could not be sent to a device",
		},
		[]string{"kind"},
	)
	return cmds, fail
}

func init() {
	commandsTotal, sendFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(commandsTotal, sendFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	commandsTotal, sendFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
