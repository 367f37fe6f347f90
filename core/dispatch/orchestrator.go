package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/core/events"
	"github.com/kmoreau/citycab/core/model"
	"github.com/kmoreau/citycab/core/session"
	"github.com/kmoreau/citycab/core/store"
	"github.com/kmoreau/citycab/infra/logger"
	"github.com/kmoreau/citycab/internal/eventbus"
)

// Ride reply payloads. Customers match on the prefix; END is the
// terminal marker releasing the customer's request permit.
const (
	ReplyAssigned    = "OK: taxi assigned"
	ReplyUnavailable = "KO: no taxi available"
	ReplyEnd         = "END"
)

// Assignment failure reasons, used in metrics and events.
const (
	reasonNoDestination = "no_destination"
	reasonNoTaxi        = "no_taxi"
)

// ArrivalMarker is the free-text fragment legacy observers publish on the
// taxi-status topic when a taxi reaches its destination. The taxi id is
// the last word before the marker ("Taxi t1 has arrived at destination").
const ArrivalMarker = "has arrived at destination"

// Orchestrator owns the taxi and customer state machines. It consumes
// ride requests and encrypted position updates from the bus and drives
// assignments, directives and customer notifications. Measurements leave
// through the event bus; the metric sinks subscribe to it downstream.
type Orchestrator struct {
	taxis       store.TaxiStore
	customers   store.CustomerStore
	locations   store.LocationStore
	assignments store.AssignmentStore
	sessions    *session.Registry
	keys        *envelope.KeyRing
	pair        *envelope.KeyPair
	relay       bus.Bus
	selector    Selector
	events      eventbus.EventBus
	log         logger.Logger

	// assignMu serializes the scan→mark-unavailable→persist sequence so
	// two concurrent ride requests cannot select the same taxi.
	assignMu sync.Mutex
}

// Deps bundles the orchestrator collaborators.
type Deps struct {
	Taxis       store.TaxiStore
	Customers   store.CustomerStore
	Locations   store.LocationStore
	Assignments store.AssignmentStore
	Sessions    *session.Registry
	Keys        *envelope.KeyRing
	Pair        *envelope.KeyPair
	Relay       bus.Bus
	Selector    Selector
	Events      eventbus.EventBus
	Log         logger.Logger
}

// New creates an Orchestrator. Events is optional.
func New(d Deps) (*Orchestrator, error) {
	if d.Taxis == nil || d.Customers == nil || d.Locations == nil || d.Assignments == nil ||
		d.Sessions == nil || d.Keys == nil || d.Pair == nil || d.Relay == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to New")
	}
	if d.Selector == nil {
		d.Selector = FirstAvailableSelector{}
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	return &Orchestrator{
		taxis:       d.Taxis,
		customers:   d.Customers,
		locations:   d.Locations,
		assignments: d.Assignments,
		sessions:    d.Sessions,
		keys:        d.Keys,
		pair:        d.Pair,
		relay:       d.Relay,
		selector:    d.Selector,
		events:      d.Events,
		log:         d.Log,
	}, nil
}

// Start subscribes the orchestrator's handlers on the bus.
func (o *Orchestrator) Start() error {
	if err := o.relay.Subscribe(bus.RideRequests, o.onRideRequest); err != nil {
		return fmt.Errorf("dispatch: subscribe ride requests: %w", err)
	}
	if err := o.relay.Subscribe(bus.PositionUpdates, o.onPositionUpdate); err != nil {
		return fmt.Errorf("dispatch: subscribe position updates: %w", err)
	}
	if err := o.relay.Subscribe(bus.TaxiStatus, o.onTaxiStatus); err != nil {
		return fmt.Errorf("dispatch: subscribe taxi status: %w", err)
	}
	return nil
}

// onRideRequest handles a "customerId#destinationId" ride request.
func (o *Orchestrator) onRideRequest(_ string, payload []byte) {
	parts := strings.SplitN(string(payload), "#", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		o.log.Errorf("malformed ride request %q", payload)
		return
	}
	customerID, destinationID := parts[0], parts[1]

	customer, ok := o.customers.Find(customerID)
	if !ok {
		// Unseeded customers start on the base cell so the pickup leg
		// targets a real map position.
		customer = model.Customer{ID: customerID, X: model.BaseX, Y: model.BaseY, State: model.CustomerIdle}
	}
	customer.DestinationID = destinationID
	customer.State = model.CustomerRequesting
	o.customers.Save(customer)

	if err := o.relay.EnsureTopic(bus.RideReplies(customerID)); err != nil {
		o.log.Errorf("ensure reply topic for %s: %v", customerID, err)
	}

	taxiID, reason := o.assign(customer, destinationID)
	if taxiID == "" {
		assignmentFailures.WithLabelValues(reason).Inc()
		o.publishEvent(events.AssignmentEvent{CustomerID: customerID, DestinationID: destinationID, Reason: reason})
		o.log.Warnf("no taxi assigned to customer %s (%s)", customerID, reason)
		o.reply(customerID, ReplyUnavailable)
		return
	}

	assignmentsTotal.Inc()
	o.publishEvent(events.AssignmentEvent{CustomerID: customerID, TaxiID: taxiID, DestinationID: destinationID, Ok: true})
	o.log.Infof("taxi %s assigned to customer %s towards %s", taxiID, customerID, destinationID)

	customer.State = model.CustomerWaitingForTaxi
	o.customers.Save(customer)
	o.reply(customerID, ReplyAssigned)
}

// assign runs the assignment algorithm and returns the chosen taxi id,
// or the failure reason when no taxi could be assigned. The whole
// check-then-act sequence runs under assignMu.
func (o *Orchestrator) assign(customer model.Customer, destinationID string) (string, string) {
	o.assignMu.Lock()
	defer o.assignMu.Unlock()

	loc, ok := o.locations.Find(destinationID)
	if !ok {
		return "", reasonNoDestination
	}

	for _, taxi := range o.selector.Rank(o.taxis.FindAllAvailable(), customer.X, customer.Y) {
		sess, ok := o.sessions.Get(taxi.ID)
		if !ok {
			continue
		}
		if !sess.Alive() {
			// Flagged available but its connection is gone: evict.
			o.sessions.Remove(taxi.ID, sess)
			o.log.Warnf("evicted dead session for taxi %s during assignment", taxi.ID)
			continue
		}

		taxi.Available = false
		taxi.DestRef = customer.ID
		taxi.State = model.TaxiAssigned
		o.taxis.Save(taxi)
		o.assignments.Replace(model.Assignment{CustomerID: customer.ID, TaxiID: taxi.ID})

		o.publishDirective(taxi.ID, model.Directive{
			TaxiID:    taxi.ID,
			X:         taxi.X,
			Y:         taxi.Y,
			State:     model.TaxiAssigned,
			CustomerX: customer.X,
			CustomerY: customer.Y,
			DestX:     loc.X,
			DestY:     loc.Y,
		})
		return taxi.ID, ""
	}
	return "", reasonNoTaxi
}

// onPositionUpdate handles an encrypted StatusUpdate envelope. The token
// is validated against the session record before any state is mutated.
func (o *Orchestrator) onPositionUpdate(_ string, payload []byte) {
	data, err := o.pair.Open(string(payload))
	if err != nil {
		o.log.Errorf("dropping undecryptable position update: %v", err)
		return
	}
	var st model.StatusUpdate
	if err := json.Unmarshal(data, &st); err != nil {
		o.log.Errorf("dropping unparsable position update: %v", err)
		return
	}

	sess, ok := o.sessions.Get(st.TaxiID)
	if !ok || st.Token == "" || sess.Token() != st.Token {
		tokenRejections.Inc()
		o.log.Warnf("discarding status from taxi %s: token mismatch", st.TaxiID)
		return
	}

	taxi, ok := o.taxis.Find(st.TaxiID)
	if !ok {
		o.log.Errorf("status from unknown taxi %s", st.TaxiID)
		return
	}

	// Coordinates and reported state are stored first, unconditionally.
	taxi.X, taxi.Y = st.X, st.Y
	taxi.State = st.State
	o.taxis.Save(taxi)

	statusUpdates.WithLabelValues(string(st.State)).Inc()
	o.publishEvent(events.StatusEvent{Status: st})

	switch st.State {
	case model.TaxiStopped:
		// The snapshot derives the red cell from the stored state; no
		// assignment action is taken for an incident.

	case model.TaxiEnRouteToDestination:
		o.mirrorCustomerPosition(taxi, st)

	case model.TaxiReturningToBase:
		o.handleReturning(taxi, sess)

	case model.TaxiDestinationReached:
		o.handleDestinationReached(taxi)

	case model.TaxiPickup:
		taxi.State = model.TaxiEnRouteToDestination
		o.taxis.Save(taxi)
	}

	o.log.Debugw("taxi position updated", map[string]any{
		"taxi": st.TaxiID, "x": st.X, "y": st.Y, "state": st.State,
	})
}

// mirrorCustomerPosition makes the assigned customer ride along with the
// taxi. A missing assignment is an inconsistency, not a fatal error.
func (o *Orchestrator) mirrorCustomerPosition(taxi model.Taxi, st model.StatusUpdate) {
	asg, ok := o.assignments.FindByTaxi(taxi.ID)
	if !ok {
		o.log.Errorf("assignment not found for taxi %s while en route", taxi.ID)
		return
	}
	customer, ok := o.customers.Find(asg.CustomerID)
	if !ok {
		o.log.Errorf("customer %s missing for assignment of taxi %s", asg.CustomerID, taxi.ID)
		return
	}
	customer.X, customer.Y = st.X, st.Y
	customer.State = model.CustomerInTransit
	o.customers.Save(customer)
}

// handleReturning resets the taxi once it reaches base. The session
// token is cleared only in the base-reached branch: clearing it earlier
// would invalidate directives still in flight during the return leg.
func (o *Orchestrator) handleReturning(taxi model.Taxi, sess *session.Session) {
	if !taxi.AtBase() {
		return
	}
	taxi.Available = true
	taxi.DestRef = ""
	taxi.State = model.TaxiIdle
	o.taxis.Save(taxi)
	sess.ClearToken()
	ridesCompleted.Inc()
	o.log.Infof("taxi %s back at base, available again", taxi.ID)
}

// handleDestinationReached flips the taxi into its return leg and sends
// the customer the terminal END marker.
func (o *Orchestrator) handleDestinationReached(taxi model.Taxi) {
	taxi.State = model.TaxiReturningToBase
	o.taxis.Save(taxi)
	o.publishDirective(taxi.ID, model.ReturnDirective(taxi))

	asg, ok := o.assignments.FindByTaxi(taxi.ID)
	if !ok {
		o.log.Errorf("assignment not found for taxi %s at destination", taxi.ID)
		return
	}
	if customer, ok := o.customers.Find(asg.CustomerID); ok {
		customer.State = model.CustomerServiceCompleted
		o.customers.Save(customer)
	}
	o.reply(asg.CustomerID, ReplyEnd)
	o.publishEvent(events.RideCompletedEvent{CustomerID: asg.CustomerID, TaxiID: taxi.ID})
}

// onTaxiStatus handles the plain-text taxi-status topic, kept for the
// simplest "has arrived" observers.
func (o *Orchestrator) onTaxiStatus(_ string, payload []byte) {
	msg := string(payload)
	idx := strings.Index(msg, ArrivalMarker)
	if idx < 0 {
		return
	}
	// The id is the last word before the marker, whatever leads the line.
	words := strings.Fields(msg[:idx])
	if len(words) == 0 {
		return
	}
	taxiID := words[len(words)-1]
	taxi, ok := o.taxis.Find(taxiID)
	if !ok {
		o.log.Warnf("arrival signal for unknown taxi %s", taxiID)
		return
	}
	taxi.Available = true
	o.taxis.Save(taxi)
	o.log.Infof("taxi %s released after arrival signal", taxiID)
}

// publishDirective seals a directive with the taxi's public key and
// publishes it on the taxi's topic. A missing key or cipher failure
// drops only this message.
func (o *Orchestrator) publishDirective(taxiID string, d model.Directive) {
	key, ok := o.keys.Lookup(taxiID)
	if !ok {
		o.log.Errorf("no public key registered for taxi %s, directive dropped", taxiID)
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		o.log.Errorf("marshal directive for taxi %s: %v", taxiID, err)
		return
	}
	sealed, err := envelope.Seal(payload, key)
	if err != nil {
		o.log.Errorf("seal directive for taxi %s: %v", taxiID, err)
		return
	}
	if err := o.relay.Publish(bus.TaxiDirective(taxiID), []byte(sealed)); err != nil {
		o.log.Errorf("publish directive to taxi %s: %v", taxiID, err)
	}
}

func (o *Orchestrator) reply(customerID, msg string) {
	if err := o.relay.Publish(bus.RideReplies(customerID), []byte(msg)); err != nil {
		o.log.Errorf("reply to customer %s: %v", customerID, err)
	}
}

func (o *Orchestrator) publishEvent(e eventbus.Event) {
	if o.events != nil {
		o.events.Publish(e)
	}
}
