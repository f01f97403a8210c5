package ocppj

import "github.com/prometheus/client_golang/prometheus"

var (
	framesTotal *prometheus.CounterVec
	callsTotal  *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec) {
	frames := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocppj_frames_total",
			Help: "OCPP-J frames by direction and message type",
		},
		[]string{"direction", "type"},
	)
	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocppj_inbound_calls_total",
			Help: "Inbound CALL frames by action and result",
		},
		[]string{"action", "result"},
	)
	return frames, calls
}

func init() {
	framesTotal, callsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers transport metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(framesTotal, callsTotal)
}

// ResetMetrics reinitializes collectors for testing purposes.
func ResetMetrics(reg prometheus.Registerer) {
	framesTotal, callsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
