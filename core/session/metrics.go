package session

import "github.com/prometheus/client_golang/prometheus"

var (
	openSessions   prometheus.Gauge
	authFailures   prometheus.Counter
	protocolErrors prometheus.Counter
)

func newCollectors() (prometheus.Gauge, prometheus.Counter, prometheus.Counter) {
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "citycab_open_sessions",
		Help: "Number of taxi sessions currently in SERVING",
	})
	auth := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citycab_auth_failures_total",
		Help: "Number of rejected handshakes (bad credential, unknown taxi, key exchange failure)",
	})
	proto := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citycab_protocol_errors_total",
		Help: "Number of malformed frames received during SERVING",
	})
	return open, auth, proto
}

func init() {
	openSessions, authFailures, protocolErrors = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers session metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(openSessions, authFailures, protocolErrors)
}

// ResetMetrics reinitializes the collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	openSessions, authFailures, protocolErrors = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
