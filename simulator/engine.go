package simulator

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/core/model"
	"github.com/kmoreau/citycab/infra/logger"
)

type phase int

const (
	phaseIdle phase = iota
	phaseToPickup
	phaseToDestination
	phaseToBase
)

// Engine drives one simulated taxi: it consumes sealed directives from
// the taxi's topic, walks the map one cell per tick and publishes a
// sealed status update on every tick. A sensor incident pauses movement
// but never the status feed.
type Engine struct {
	taxiID  string
	relay   bus.Bus
	pair    *envelope.KeyPair
	cadence time.Duration
	log     logger.Logger

	stopped atomic.Bool

	mu       sync.Mutex
	token    string
	coordKey *rsa.PublicKey

	path  PathFinder
	x, y  int
	state model.TaxiState
	ph    phase
	// current leg target, plus the destination queued behind the pickup
	targetX, targetY int
	destX, destY     int

	directives chan model.Directive
}

// NewEngine creates an Engine starting at base.
func NewEngine(taxiID string, relay bus.Bus, pair *envelope.KeyPair, cadence time.Duration, log logger.Logger) *Engine {
	if cadence <= 0 {
		cadence = time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Engine{
		taxiID:     taxiID,
		relay:      relay,
		pair:       pair,
		cadence:    cadence,
		log:        log,
		x:          model.BaseX,
		y:          model.BaseY,
		state:      model.TaxiIdle,
		directives: make(chan model.Directive, 4),
	}
}

// SetCredentials installs the session token and the coordinator public
// key obtained from the handshake. Called on every (re)connect.
func (e *Engine) SetCredentials(token string, coordKey *rsa.PublicKey) {
	e.mu.Lock()
	e.token = token
	e.coordKey = coordKey
	e.mu.Unlock()
}

// SetStopped pauses or resumes movement. While stopped the engine keeps
// reporting its position with the STOPPED state.
func (e *Engine) SetStopped(stopped bool) {
	if e.stopped.Swap(stopped) != stopped {
		if stopped {
			e.log.Warnf("taxi %s stopped by sensor incident", e.taxiID)
		} else {
			e.log.Infof("taxi %s resuming", e.taxiID)
		}
	}
}

// Position returns the engine's current cell.
func (e *Engine) Position() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.x, e.y
}

// Run subscribes to the taxi's directive topic and ticks until the
// context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.relay.Subscribe(bus.TaxiDirective(e.taxiID), e.onDirective); err != nil {
		return fmt.Errorf("simulator: subscribe directives: %w", err)
	}
	ticker := time.NewTicker(e.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-e.directives:
			e.apply(d)
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) onDirective(_ string, payload []byte) {
	plain, err := e.pair.Open(string(payload))
	if err != nil {
		e.log.Errorf("taxi %s: undecryptable directive: %v", e.taxiID, err)
		return
	}
	var d model.Directive
	if err := json.Unmarshal(plain, &d); err != nil {
		e.log.Errorf("taxi %s: unparsable directive: %v", e.taxiID, err)
		return
	}
	select {
	case e.directives <- d:
	default:
		e.log.Warnf("taxi %s: directive queue full, dropping", e.taxiID)
	}
}

func (e *Engine) apply(d model.Directive) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d.State == model.TaxiReturningToBase {
		e.ph = phaseToBase
		e.targetX, e.targetY = model.BaseX, model.BaseY
		e.state = model.TaxiReturningToBase
		return
	}
	e.ph = phaseToPickup
	e.targetX, e.targetY = d.CustomerX, d.CustomerY
	e.destX, e.destY = d.DestX, d.DestY
	e.state = model.TaxiEnRouteToPickup
	e.log.Infof("taxi %s: new job, pickup (%d,%d) destination (%d,%d)",
		e.taxiID, d.CustomerX, d.CustomerY, d.DestX, d.DestY)
}

// tick advances one movement step and publishes the resulting status.
func (e *Engine) tick() {
	e.mu.Lock()
	if e.stopped.Load() {
		st := e.statusLocked(model.TaxiStopped)
		e.mu.Unlock()
		e.publish(st)
		return
	}
	if e.ph == phaseIdle {
		e.mu.Unlock()
		return
	}

	var arrived bool
	e.x, e.y, arrived = e.path.NextPosition(e.x, e.y, e.targetX, e.targetY)

	var report model.TaxiState
	switch e.ph {
	case phaseToPickup:
		report = model.TaxiEnRouteToPickup
		if arrived {
			report = model.TaxiPickup
			e.ph = phaseToDestination
			e.targetX, e.targetY = e.destX, e.destY
			e.state = model.TaxiEnRouteToDestination
		}
	case phaseToDestination:
		report = model.TaxiEnRouteToDestination
		if arrived {
			report = model.TaxiDestinationReached
			e.ph = phaseIdle
			e.state = model.TaxiDestinationReached
		}
	case phaseToBase:
		report = model.TaxiReturningToBase
		if arrived {
			e.ph = phaseIdle
			e.state = model.TaxiIdle
		}
	}
	st := e.statusLocked(report)
	e.mu.Unlock()
	e.publish(st)
}

// statusLocked builds the update under e.mu.
func (e *Engine) statusLocked(state model.TaxiState) model.StatusUpdate {
	return model.StatusUpdate{TaxiID: e.taxiID, X: e.x, Y: e.y, State: state, Token: e.token}
}

func (e *Engine) publish(st model.StatusUpdate) {
	e.mu.Lock()
	key := e.coordKey
	e.mu.Unlock()
	if key == nil {
		e.log.Debugf("taxi %s: no coordinator key yet, status dropped", e.taxiID)
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		e.log.Errorf("taxi %s: marshal status: %v", e.taxiID, err)
		return
	}
	sealed, err := envelope.Seal(payload, key)
	if err != nil {
		e.log.Errorf("taxi %s: seal status: %v", e.taxiID, err)
		return
	}
	if err := e.relay.Publish(bus.PositionUpdates, []byte(sealed)); err != nil {
		e.log.Warnf("taxi %s: publish status: %v", e.taxiID, err)
	}
}
