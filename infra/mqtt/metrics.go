package mqtt

import "github.com/prometheus/client_golang/prometheus"

var (
	publishSuccess prometheus.Counter
	publishFailure prometheus.Counter
)

func newCollectors() (prometheus.Counter, prometheus.Counter) {
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_publish_success_total",
			Help: "Number of successful MQTT publish operations",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mqtt_publish_failure_total",
			Help: "Number of failed MQTT publish operations",
		},
	)
	return suc, fail
}

func init() {
	publishSuccess, publishFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers publisher metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(publishSuccess, publishFailure)
}

// ResetMetrics reinitializes collectors for testing purposes.
func ResetMetrics(reg prometheus.Registerer) {
	publishSuccess, publishFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
