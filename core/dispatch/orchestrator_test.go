package dispatch_test

import (
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/core/dispatch"
	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/core/model"
	"github.com/kmoreau/citycab/core/session"
	"github.com/kmoreau/citycab/core/store"
)

type fixture struct {
	taxis       *store.MemoryTaxiStore
	customers   *store.MemoryCustomerStore
	locations   *store.MemoryLocationStore
	assignments *store.MemoryAssignmentStore
	sessions    *session.Registry
	keys        *envelope.KeyRing
	coordPair   *envelope.KeyPair
	relay       *bus.MockBus
	orch        *dispatch.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dispatch.ResetMetrics(prometheus.NewRegistry())

	pair, err := envelope.NewKeyPair()
	require.NoError(t, err)

	f := &fixture{
		taxis:       store.NewMemoryTaxiStore(),
		customers:   store.NewMemoryCustomerStore(),
		locations:   store.NewMemoryLocationStore(),
		assignments: store.NewMemoryAssignmentStore(),
		sessions:    session.NewRegistry(),
		keys:        envelope.NewKeyRing(),
		coordPair:   pair,
		relay:       bus.NewMockBus(),
	}
	f.locations.Save(model.Location{ID: "L1", X: 5, Y: 5})

	f.orch, err = dispatch.New(dispatch.Deps{
		Taxis:       f.taxis,
		Customers:   f.customers,
		Locations:   f.locations,
		Assignments: f.assignments,
		Sessions:    f.sessions,
		Keys:        f.keys,
		Pair:        pair,
		Relay:       f.relay,
	})
	require.NoError(t, err)
	require.NoError(t, f.orch.Start())
	return f
}

// addTaxi registers an available taxi with a live session and a key pair,
// returning the taxi's pair (to decrypt directives) and its session.
func (f *fixture) addTaxi(t *testing.T, id, token string) (*envelope.KeyPair, *session.Session) {
	t.Helper()
	pair, err := envelope.NewKeyPair()
	require.NoError(t, err)
	f.keys.Register(id, pair.Public())
	f.taxis.Save(model.Taxi{ID: id, X: model.BaseX, Y: model.BaseY, Available: true, State: model.TaxiIdle})

	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })
	sess := session.NewSession(id, token, server)
	f.sessions.Replace(sess)
	return pair, sess
}

func (f *fixture) sendStatus(t *testing.T, st model.StatusUpdate) {
	t.Helper()
	data, err := json.Marshal(st)
	require.NoError(t, err)
	sealed, err := envelope.Seal(data, f.coordPair.Public())
	require.NoError(t, err)
	require.NoError(t, f.relay.Publish(bus.PositionUpdates, []byte(sealed)))
}

func TestOrchestratorAssignsFirstAvailableTaxi(t *testing.T) {
	f := newFixture(t)
	taxiPair, _ := f.addTaxi(t, "t1", "tok-1")

	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	reply, ok := f.relay.LastMessage(bus.RideReplies("c1"))
	require.True(t, ok)
	assert.Equal(t, dispatch.ReplyAssigned, string(reply))

	taxi, ok := f.taxis.Find("t1")
	require.True(t, ok)
	assert.False(t, taxi.Available)
	assert.Equal(t, model.TaxiAssigned, taxi.State)
	assert.Equal(t, "c1", taxi.DestRef)

	customer, ok := f.customers.Find("c1")
	require.True(t, ok)
	assert.Equal(t, model.CustomerWaitingForTaxi, customer.State)

	sealed, ok := f.relay.LastMessage(bus.TaxiDirective("t1"))
	require.True(t, ok)
	plain, err := taxiPair.Open(string(sealed))
	require.NoError(t, err)
	var d model.Directive
	require.NoError(t, json.Unmarshal(plain, &d))
	assert.Equal(t, model.TaxiAssigned, d.State)
	assert.Equal(t, 5, d.DestX)
	assert.Equal(t, 5, d.DestY)

	asg, ok := f.assignments.FindByTaxi("t1")
	require.True(t, ok)
	assert.Equal(t, "c1", asg.CustomerID)
}

func TestOrchestratorRejectsUnknownDestination(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")

	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#nowhere")))

	reply, ok := f.relay.LastMessage(bus.RideReplies("c1"))
	require.True(t, ok)
	assert.Equal(t, dispatch.ReplyUnavailable, string(reply))

	taxi, _ := f.taxis.Find("t1")
	assert.True(t, taxi.Available, "taxi must stay available when the destination is unknown")
	assert.Empty(t, f.relay.Messages(bus.TaxiDirective("t1")))
}

func TestOrchestratorSkipsAndEvictsDeadSessions(t *testing.T) {
	f := newFixture(t)
	_, dead := f.addTaxi(t, "t1", "tok-1")
	f.addTaxi(t, "t2", "tok-2")
	dead.Close()

	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	reply, ok := f.relay.LastMessage(bus.RideReplies("c1"))
	require.True(t, ok)
	assert.Equal(t, dispatch.ReplyAssigned, string(reply))

	t2, _ := f.taxis.Find("t2")
	assert.False(t, t2.Available)
	t1, _ := f.taxis.Find("t1")
	assert.True(t, t1.Available, "dead taxi must not be assigned")

	_, still := f.sessions.Get("t1")
	assert.False(t, still, "dead session must be evicted from the registry")
}

func TestOrchestratorNoTaxiAvailable(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	reply, ok := f.relay.LastMessage(bus.RideReplies("c1"))
	require.True(t, ok)
	assert.Equal(t, dispatch.ReplyUnavailable, string(reply))
}

func TestOrchestratorDiscardsTokenMismatch(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 9, Y: 9, State: model.TaxiEnRouteToDestination, Token: "forged"})

	taxi, _ := f.taxis.Find("t1")
	assert.Equal(t, model.BaseX, taxi.X, "forged token must not move the taxi")
	assert.Equal(t, model.BaseY, taxi.Y)
	assert.Equal(t, model.TaxiIdle, taxi.State)
}

func TestOrchestratorDiscardsEmptyToken(t *testing.T) {
	f := newFixture(t)
	_, sess := f.addTaxi(t, "t1", "tok-1")
	sess.ClearToken()

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 9, Y: 9, State: model.TaxiEnRouteToDestination, Token: ""})

	taxi, _ := f.taxis.Find("t1")
	assert.Equal(t, model.BaseX, taxi.X)
}

func TestOrchestratorMirrorsCustomerWhileEnRoute(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")
	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 3, Y: 4, State: model.TaxiEnRouteToDestination, Token: "tok-1"})

	customer, ok := f.customers.Find("c1")
	require.True(t, ok)
	assert.Equal(t, 3, customer.X)
	assert.Equal(t, 4, customer.Y)
	assert.Equal(t, model.CustomerInTransit, customer.State)
}

func TestOrchestratorRideCompletionFlow(t *testing.T) {
	f := newFixture(t)
	taxiPair, sess := f.addTaxi(t, "t1", "tok-1")
	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))
	directivesBefore := len(f.relay.Messages(bus.TaxiDirective("t1")))

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 5, Y: 5, State: model.TaxiDestinationReached, Token: "tok-1"})

	reply, ok := f.relay.LastMessage(bus.RideReplies("c1"))
	require.True(t, ok)
	assert.Equal(t, dispatch.ReplyEnd, string(reply))

	customer, _ := f.customers.Find("c1")
	assert.Equal(t, model.CustomerServiceCompleted, customer.State)

	taxi, _ := f.taxis.Find("t1")
	assert.Equal(t, model.TaxiReturningToBase, taxi.State)
	assert.False(t, taxi.Available, "taxi stays busy until it is back at base")

	directives := f.relay.Messages(bus.TaxiDirective("t1"))
	require.Len(t, directives, directivesBefore+1)
	plain, err := taxiPair.Open(string(directives[len(directives)-1]))
	require.NoError(t, err)
	var d model.Directive
	require.NoError(t, json.Unmarshal(plain, &d))
	assert.Equal(t, model.TaxiReturningToBase, d.State)
	assert.Equal(t, -1, d.DestX)

	// Still returning, not at base yet: nothing is released.
	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 2, Y: 1, State: model.TaxiReturningToBase, Token: "tok-1"})
	taxi, _ = f.taxis.Find("t1")
	assert.False(t, taxi.Available)
	assert.NotEmpty(t, sess.Token())

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: model.BaseX, Y: model.BaseY, State: model.TaxiReturningToBase, Token: "tok-1"})
	taxi, _ = f.taxis.Find("t1")
	assert.True(t, taxi.Available)
	assert.Equal(t, model.TaxiIdle, taxi.State)
	assert.Empty(t, taxi.DestRef)
	assert.Empty(t, sess.Token(), "token is retired once the taxi is back at base")
}

func TestOrchestratorPickupAdvancesToEnRoute(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")
	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 2, Y: 2, State: model.TaxiPickup, Token: "tok-1"})

	taxi, _ := f.taxis.Find("t1")
	assert.Equal(t, model.TaxiEnRouteToDestination, taxi.State)
}

func TestOrchestratorStoppedKeepsAssignment(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")
	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	f.sendStatus(t, model.StatusUpdate{TaxiID: "t1", X: 2, Y: 2, State: model.TaxiStopped, Token: "tok-1"})

	taxi, _ := f.taxis.Find("t1")
	assert.Equal(t, model.TaxiStopped, taxi.State)
	assert.False(t, taxi.Available)
	_, ok := f.assignments.FindByTaxi("t1")
	assert.True(t, ok, "an incident must not tear down the assignment")
}

func TestOrchestratorConcurrentRequestsSingleTaxi(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")

	var wg sync.WaitGroup
	for _, req := range []string{"c1#L1", "c2#L1"} {
		wg.Add(1)
		go func(payload string) {
			defer wg.Done()
			_ = f.relay.Publish(bus.RideRequests, []byte(payload))
		}(req)
	}
	wg.Wait()

	assigned := 0
	for _, id := range []string{"c1", "c2"} {
		if msg, ok := f.relay.LastMessage(bus.RideReplies(id)); ok && string(msg) == dispatch.ReplyAssigned {
			assigned++
		}
	}
	assert.Equal(t, 1, assigned, "one taxi can serve exactly one of two concurrent requests")
}

func TestOrchestratorArrivalSignalReleasesTaxi(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")
	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	require.NoError(t, f.relay.Publish(bus.TaxiStatus, []byte("Taxi t1 has arrived at destination")))

	taxi, _ := f.taxis.Find("t1")
	assert.True(t, taxi.Available)
}

func TestOrchestratorArrivalSignalWithoutPrefix(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")
	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	require.NoError(t, f.relay.Publish(bus.TaxiStatus, []byte("t1 has arrived at destination")))

	taxi, _ := f.taxis.Find("t1")
	assert.True(t, taxi.Available, "the id is whatever word precedes the arrival marker")
}

func TestOrchestratorSeedsUnknownCustomerAtBase(t *testing.T) {
	f := newFixture(t)
	taxiPair, _ := f.addTaxi(t, "t1", "tok-1")

	require.NoError(t, f.relay.Publish(bus.RideRequests, []byte("c1#L1")))

	customer, ok := f.customers.Find("c1")
	require.True(t, ok)
	assert.Equal(t, model.BaseX, customer.X, "a first-time customer must start on the grid")
	assert.Equal(t, model.BaseY, customer.Y)

	sealed, ok := f.relay.LastMessage(bus.TaxiDirective("t1"))
	require.True(t, ok)
	plain, err := taxiPair.Open(string(sealed))
	require.NoError(t, err)
	var d model.Directive
	require.NoError(t, json.Unmarshal(plain, &d))
	assert.Equal(t, model.BaseX, d.CustomerX)
	assert.Equal(t, model.BaseY, d.CustomerY)
}

func TestOrchestratorIgnoresMalformedRequest(t *testing.T) {
	f := newFixture(t)
	f.addTaxi(t, "t1", "tok-1")

	for _, payload := range []string{"", "c1", "c1#", "#L1"} {
		require.NoError(t, f.relay.Publish(bus.RideRequests, []byte(payload)))
	}

	taxi, _ := f.taxis.Find("t1")
	assert.True(t, taxi.Available)
}
