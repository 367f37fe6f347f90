// Package metrics provides the sink implementations recording dispatch
// measurements: Prometheus, InfluxDB and a fan-out combining them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/kmoreau/citycab/core/metrics"
	"github.com/kmoreau/citycab/infra/logger"
)

// PromSink records dispatch measurements in Prometheus collectors.
type PromSink struct {
	assignments *prometheus.CounterVec
	positions   *prometheus.GaugeVec
}

// NewPromSink registers the sink collectors on the default Prometheus
// registerer. The scrape server is started separately with Serve.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the collectors on the provided
// registerer. A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "citycab_sink_assignments_total",
		Help: "Assignment attempts recorded through the metrics sink",
	}, []string{"ok", "reason"})
	positions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "citycab_taxi_position",
		Help: "Last reported taxi coordinate",
	}, []string{"taxi_id", "axis"})

	if err := reg.Register(assignments); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			assignments = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(positions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			positions = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{assignments: assignments, positions: positions}, nil
}

// RecordAssignment counts the attempt by outcome.
func (s *PromSink) RecordAssignment(rec coremetrics.AssignmentRecord) error {
	s.assignments.WithLabelValues(strconv.FormatBool(rec.Ok), rec.Reason).Inc()
	return nil
}

// RecordStatusUpdate tracks the last reported position per taxi.
func (s *PromSink) RecordStatusUpdate(rec coremetrics.StatusRecord) error {
	s.positions.WithLabelValues(rec.TaxiID, "x").Set(float64(rec.X))
	s.positions.WithLabelValues(rec.TaxiID, "y").Set(float64(rec.Y))
	return nil
}

// Serve exposes /metrics on the given port until the context is
// canceled. It blocks; run it in its own goroutine.
func Serve(ctx context.Context, port string, log logger.Logger) error {
	if log == nil {
		log = logger.NopLogger{}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Infof("prometheus scrape endpoint listening on :%s", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
