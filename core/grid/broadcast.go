package grid

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/infra/logger"
)

// Broadcaster publishes a fresh map snapshot at a fixed cadence.
// Spectators only ever consume the latest frame, so delivery is
// fire-and-forget and a failed publish drops the frame.
type Broadcaster struct {
	builder  *Builder
	relay    bus.Bus
	interval time.Duration
	log      logger.Logger
}

// NewBroadcaster returns a Broadcaster ticking at interval.
func NewBroadcaster(builder *Builder, relay bus.Bus, interval time.Duration, log logger.Logger) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Broadcaster{builder: builder, relay: relay, interval: interval, log: log}
}

// Run publishes snapshots until the context is canceled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

func (b *Broadcaster) publish() {
	snap := b.builder.Build()
	payload, err := json.Marshal(snap)
	if err != nil {
		b.log.Errorf("marshal map snapshot: %v", err)
		return
	}
	if err := b.relay.Publish(bus.MapSnapshots, payload); err != nil {
		b.log.Warnf("publish map snapshot: %v", err)
	}
}
