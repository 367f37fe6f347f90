package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoreau/citycab/core/bus"
)

// autoCoordinator answers every ride request on the customer's reply
// topic with the scripted replies, in order.
func autoCoordinator(t *testing.T, relay *bus.MockBus, customerID string, replies []string) {
	t.Helper()
	i := 0
	require.NoError(t, relay.Subscribe(bus.RideRequests, func(_ string, _ []byte) {
		if i >= len(replies) {
			return
		}
		r := replies[i]
		i++
		require.NoError(t, relay.Publish(bus.RideReplies(customerID), []byte("OK: taxi assigned")))
		require.NoError(t, relay.Publish(bus.RideReplies(customerID), []byte(r)))
	}))
}

func TestAgentWorksThroughDestinations(t *testing.T) {
	relay := bus.NewMockBus()
	autoCoordinator(t, relay, "c1", []string{"END", "END"})

	a := NewAgent("c1", []string{"L1", "L2"}, relay, time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	requests := relay.Messages(bus.RideRequests)
	require.Len(t, requests, 2)
	assert.Equal(t, "c1#L1", string(requests[0]))
	assert.Equal(t, "c1#L2", string(requests[1]))
}

func TestAgentContinuesAfterRefusal(t *testing.T) {
	relay := bus.NewMockBus()
	i := 0
	replies := []string{"KO: no taxi available", "END"}
	require.NoError(t, relay.Subscribe(bus.RideRequests, func(_ string, _ []byte) {
		r := replies[i]
		i++
		require.NoError(t, relay.Publish(bus.RideReplies("c1"), []byte(r)))
	}))

	a := NewAgent("c1", []string{"L1", "L2"}, relay, time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.Len(t, relay.Messages(bus.RideRequests), 2)
}

func TestAgentSingleRideInFlight(t *testing.T) {
	relay := bus.NewMockBus()
	// Nobody ever answers: the permit is never returned, so only the
	// first request may go out before the context expires.
	a := NewAgent("c1", []string{"L1", "L2", "L3"}, relay, time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.Len(t, relay.Messages(bus.RideRequests), 1)
}
