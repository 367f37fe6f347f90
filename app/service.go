// Package app assembles the coordinator process from the configuration:
// relay, stores, crypto identity, session server, dispatch orchestrator,
// grid broadcaster and the HTTP surfaces.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kmoreau/citycab/api/registry"
	"github.com/kmoreau/citycab/api/traffic"
	"github.com/kmoreau/citycab/config"
	"github.com/kmoreau/citycab/connectors/weather"
	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/core/dispatch"
	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/core/grid"
	coremetrics "github.com/kmoreau/citycab/core/metrics"
	"github.com/kmoreau/citycab/core/session"
	"github.com/kmoreau/citycab/core/store"
	"github.com/kmoreau/citycab/infra/logger"
	"github.com/kmoreau/citycab/infra/metrics"
	"github.com/kmoreau/citycab/infra/mqtt"
	"github.com/kmoreau/citycab/internal/eventbus"
)

// Service owns every long-running component of the coordinator.
type Service struct {
	cfg   *config.Config
	relay bus.Bus
	srv   *session.Server
	orch  *dispatch.Orchestrator
	cast  *grid.Broadcaster
	httpS *http.Server
	bus   eventbus.EventBus
	sink  coremetrics.Sink
	log   logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	relay, err := mqtt.NewPahoBus(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	pair, err := envelope.NewKeyPair()
	if err != nil {
		return nil, err
	}
	keys := envelope.NewKeyRing()
	sessions := session.NewRegistry()
	events := eventbus.New()

	taxis := store.NewMemoryTaxiStore()
	customers := store.NewMemoryCustomerStore()
	locations := store.NewMemoryLocationStore()
	assignments := store.NewMemoryAssignmentStore()
	for _, l := range cfg.Locations {
		locations.Save(l)
	}

	sink, err := metrics.Build(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metric sinks: %w", err)
	}

	orch, err := dispatch.New(dispatch.Deps{
		Taxis:       taxis,
		Customers:   customers,
		Locations:   locations,
		Assignments: assignments,
		Sessions:    sessions,
		Keys:        keys,
		Pair:        pair,
		Relay:       relay,
		Selector:    dispatch.NewSelector(cfg.Dispatch.Selector),
		Events:      events,
		Log:         logger.New("dispatch"),
	})
	if err != nil {
		return nil, err
	}

	handler, err := session.NewHandler(cfg.Session.Secret, sessions, taxis, keys, pair, relay, events, logger.New("session"))
	if err != nil {
		return nil, err
	}
	srv, err := session.NewServer(cfg.Session.ListenAddr, handler, logger.New("session-server"))
	if err != nil {
		return nil, err
	}

	builder := grid.NewBuilder(taxis, customers, locations)
	cast := grid.NewBroadcaster(builder, relay, time.Duration(cfg.Grid.IntervalMS)*time.Millisecond, logger.New("grid"))

	mux := http.NewServeMux()
	registry.NewHandler(taxis, logger.New("registry")).Register(mux)
	if cfg.Weather.APIKey != "" {
		wc := weather.NewClient(cfg.Weather, logger.New("weather"))
		traffic.NewHandler(wc.TrafficStatus, logger.New("traffic")).Register(mux)
	}
	httpS := &http.Server{Addr: cfg.Registry.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	return &Service{
		cfg:   cfg,
		relay: relay,
		srv:   srv,
		orch:  orch,
		cast:  cast,
		httpS: httpS,
		bus:   events,
		sink:  sink,
		log:   logg,
	}, nil
}

// Run starts every component and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.orch.Start(); err != nil {
		return err
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	go s.cast.Run(ctx)
	go func() {
		s.log.Infof("registry API listening on %s", s.cfg.Registry.ListenAddr)
		if err := s.httpS.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("http server: %v", err)
		}
	}()
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.Serve(ctx, s.cfg.Metrics.PrometheusPort, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	err := s.srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpS.Shutdown(shutdownCtx)
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	s.relay.Close()
	return nil
}
