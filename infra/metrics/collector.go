package metrics

import (
	"context"
	"time"

	"github.com/kmoreau/citycab/core/events"
	coremetrics "github.com/kmoreau/citycab/core/metrics"
	"github.com/kmoreau/citycab/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records dispatch
// events on the sink. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.Sink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.AssignmentEvent:
		_ = sink.RecordAssignment(coremetrics.AssignmentRecord{
			CustomerID:    e.CustomerID,
			TaxiID:        e.TaxiID,
			DestinationID: e.DestinationID,
			Ok:            e.Ok,
			Reason:        e.Reason,
			Time:          time.Now(),
		})
	case events.StatusEvent:
		_ = sink.RecordStatusUpdate(coremetrics.StatusRecord{
			TaxiID: e.Status.TaxiID,
			X:      e.Status.X,
			Y:      e.Status.Y,
			State:  string(e.Status.State),
			Time:   time.Now(),
		})
	}
}
