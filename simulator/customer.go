package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/infra/logger"
)

// Agent simulates one customer working through a list of destinations.
// A single permit gates the requests: it is taken before publishing and
// given back when the ride ends or is refused, so at most one ride per
// customer is ever in flight.
type Agent struct {
	customerID   string
	destinations []string
	relay        bus.Bus
	pause        time.Duration
	log          logger.Logger

	permit chan struct{}
}

// NewAgent wires a customer agent. pause is the idle time between the
// end of one ride and the next request.
func NewAgent(customerID string, destinations []string, relay bus.Bus, pause time.Duration, log logger.Logger) *Agent {
	if pause <= 0 {
		pause = 4 * time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	a := &Agent{
		customerID:   customerID,
		destinations: destinations,
		relay:        relay,
		pause:        pause,
		log:          log,
		permit:       make(chan struct{}, 1),
	}
	a.permit <- struct{}{}
	return a
}

// Run requests a ride to each destination in order and returns when the
// list is exhausted or the context is canceled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.relay.Subscribe(bus.RideReplies(a.customerID), a.onReply); err != nil {
		return fmt.Errorf("simulator: subscribe replies: %w", err)
	}
	for _, dest := range a.destinations {
		select {
		case <-ctx.Done():
			return nil
		case <-a.permit:
		}
		payload := a.customerID + "#" + dest
		if err := a.relay.Publish(bus.RideRequests, []byte(payload)); err != nil {
			a.log.Errorf("customer %s: publish request: %v", a.customerID, err)
			a.release()
			continue
		}
		a.log.Infof("customer %s: requested ride to %s", a.customerID, dest)
	}
	// Wait for the last ride to finish.
	select {
	case <-ctx.Done():
	case <-a.permit:
	}
	return nil
}

func (a *Agent) onReply(_ string, payload []byte) {
	msg := string(payload)
	switch {
	case msg == "END":
		a.log.Infof("customer %s: ride finished", a.customerID)
		time.Sleep(a.pause)
		a.release()
	case strings.HasPrefix(msg, "KO"):
		a.log.Warnf("customer %s: request refused: %s", a.customerID, msg)
		time.Sleep(a.pause)
		a.release()
	case strings.HasPrefix(msg, "OK"):
		a.log.Infof("customer %s: %s", a.customerID, msg)
	}
}

func (a *Agent) release() {
	select {
	case a.permit <- struct{}{}:
	default:
	}
}
