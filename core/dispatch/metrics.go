package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	assignmentsTotal   prometheus.Counter
	assignmentFailures *prometheus.CounterVec
	statusUpdates      *prometheus.CounterVec
	tokenRejections    prometheus.Counter
	ridesCompleted     prometheus.Counter
)

func newCollectors() (prometheus.Counter, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	asn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citycab_assignments_total",
		Help: "Number of successful taxi assignments",
	})
	fail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "citycab_assignment_failures_total",
		Help: "Number of failed assignment attempts",
	}, []string{"reason"})
	status := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "citycab_status_updates_total",
		Help: "Number of accepted taxi status updates",
	}, []string{"state"})
	tok := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citycab_token_rejections_total",
		Help: "Number of status updates discarded for token mismatch",
	})
	done := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citycab_rides_completed_total",
		Help: "Number of rides completed end to end",
	})
	return asn, fail, status, tok, done
}

func init() {
	assignmentsTotal, assignmentFailures, statusUpdates, tokenRejections, ridesCompleted = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided
// registry. If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(assignmentsTotal, assignmentFailures, statusUpdates, tokenRejections, ridesCompleted)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	assignmentsTotal, assignmentFailures, statusUpdates, tokenRejections, ridesCompleted = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
