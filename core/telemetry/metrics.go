package telemetry

import "github.com/prometheus/client_golang/prometheus"

const (
	resultPublished  = "published"
	resultSuppressed = "suppressed"
	resultFailed     = "failed"
)

var (
	snapshotsTotal *prometheus.CounterVec
	statusTotal    *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec) {
	snaps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_snapshots_total",
			Help: "Normalized snapshots by publish result",
		},
		[]string{"result"},
	)
	status := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_status_total",
			Help: "Forwarded connector statuses by publish result",
		},
		[]string{"result"},
	)
	return snaps, status
}

func init() {
	snapshotsTotal, statusTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers telemetry metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(snapshotsTotal, statusTotal)
}

// ResetMetrics reinitializes collectors for testing purposes and registers
// them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	snapshotsTotal, statusTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
