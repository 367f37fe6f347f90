package session

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/kmoreau/citycab/core/bus"
	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/core/events"
	"github.com/kmoreau/citycab/core/protocol"
	"github.com/kmoreau/citycab/core/store"
	"github.com/kmoreau/citycab/infra/logger"
	"github.com/kmoreau/citycab/internal/eventbus"
)

// Consecutive malformed frames tolerated during SERVING before the
// connection is dropped.
const decodeFailureThreshold = 3

var (
	// ErrBadCredential is returned when the AUTH frame is malformed or
	// does not carry the expected shared secret.
	ErrBadCredential = errors.New("session: bad credential")
	// ErrNotRegistered is returned when the taxi identifier is unknown to
	// the registration collaborator.
	ErrNotRegistered = errors.New("session: taxi not registered")
)

// Handler completes the handshake for one taxi connection and then runs
// its serving loop. One Handler value is shared by all connections; all
// per-connection state lives on the stack of Handle.
type Handler struct {
	secret   string
	registry *Registry
	taxis    store.TaxiStore
	keys     *envelope.KeyRing
	pair     *envelope.KeyPair
	relay    bus.Bus
	events   eventbus.EventBus
	log      logger.Logger
}

// NewHandler wires a connection handler.
func NewHandler(secret string, reg *Registry, taxis store.TaxiStore, keys *envelope.KeyRing, pair *envelope.KeyPair, relay bus.Bus, ev eventbus.EventBus, log logger.Logger) (*Handler, error) {
	if reg == nil || taxis == nil || keys == nil || pair == nil || relay == nil {
		return nil, fmt.Errorf("session: nil parameter provided to NewHandler")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Handler{
		secret:   secret,
		registry: reg,
		taxis:    taxis,
		keys:     keys,
		pair:     pair,
		relay:    relay,
		events:   ev,
		log:      log,
	}, nil
}

// Handle drives one connection through the session state machine:
// AWAITING_AUTH, KEY_EXCHANGE, AUTHENTICATED, SERVING, CLOSED. It blocks
// until the connection terminates and never returns an error to the
// accept loop; every failure path closes just this connection.
func (h *Handler) Handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	taxiID, err := h.awaitAuth(conn)
	if err != nil {
		authFailures.Inc()
		_ = protocol.WriteMessage(conn, protocol.Nack())
		h.log.Warnf("handshake rejected: %v", err)
		return
	}

	peerKey, err := h.exchangeKeys(conn)
	if err != nil {
		authFailures.Inc()
		h.log.Errorf("key exchange with taxi %s failed: %v", taxiID, err)
		return
	}
	h.keys.Register(taxiID, peerKey)

	token := uuid.NewString()
	sess := NewSession(taxiID, token, conn)
	if prev, inserted := h.registry.Insert(sess); !inserted {
		// Reconnect: the stale session's token must never survive.
		prev.ClearToken()
		prev.Close()
		h.registry.Replace(sess)
		h.log.Warnf("taxi %s reconnected, previous session evicted", taxiID)
	}
	defer h.teardown(sess)

	if err := protocol.WriteMessage(conn, protocol.Ack(token)); err != nil {
		h.log.Errorf("taxi %s: send token ack: %v", taxiID, err)
		return
	}
	if err := h.relay.EnsureTopic(bus.TaxiDirective(taxiID)); err != nil {
		h.log.Errorf("taxi %s: ensure directive topic: %v", taxiID, err)
		return
	}
	openSessions.Inc()
	defer openSessions.Dec()
	if h.events != nil {
		h.events.Publish(events.SessionEvent{TaxiID: taxiID, Connected: true})
	}
	h.log.Infof("taxi %s authenticated, session token issued", taxiID)

	h.serve(conn, taxiID)
}

// awaitAuth reads and validates the authentication frame. The frame must
// decode validly and carry exactly AUTH, the taxi identifier and the
// shared secret; the identifier must be known to the registration
// collaborator.
func (h *Handler) awaitAuth(conn net.Conn) (string, error) {
	raw, err := protocol.ReadMessage(conn)
	if err != nil {
		return "", fmt.Errorf("read auth frame: %w", err)
	}
	fields, err := protocol.Decode(raw)
	if err != nil {
		return "", err
	}
	if len(fields) != 3 || fields[0] != protocol.OpAuth || fields[2] != h.secret {
		return "", ErrBadCredential
	}
	taxiID := fields[1]
	if _, ok := h.taxis.Find(taxiID); !ok {
		return taxiID, fmt.Errorf("%w: %s", ErrNotRegistered, taxiID)
	}
	return taxiID, nil
}

// exchangeKeys receives the taxi's public key and answers with the
// coordinator's. This happens exactly once per session, over plaintext,
// before any directive traffic.
func (h *Handler) exchangeKeys(conn net.Conn) (*rsa.PublicKey, error) {
	peerB64, err := protocol.ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read peer key: %w", err)
	}
	peerKey, err := envelope.ParsePublicKey(string(peerB64))
	if err != nil {
		return nil, err
	}
	own, err := h.pair.PublicBase64()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteMessage(conn, []byte(own)); err != nil {
		return nil, fmt.Errorf("send own key: %w", err)
	}
	return peerKey, nil
}

// serve is the liveness loop: it acknowledges well-formed frames and
// rejects malformed ones without ever inspecting business payloads.
// It exits on the EOT marker, an I/O error, or too many decode failures.
func (h *Handler) serve(conn net.Conn, taxiID string) {
	failures := 0
	for {
		raw, err := protocol.ReadMessage(conn)
		if err != nil {
			h.log.Infof("taxi %s connection closed: %v", taxiID, err)
			return
		}
		fields, err := protocol.Decode(raw)
		if err != nil {
			failures++
			protocolErrors.Inc()
			h.log.Warnf("taxi %s sent malformed frame (%d/%d)", taxiID, failures, decodeFailureThreshold)
			if err := protocol.WriteMessage(conn, protocol.Nack()); err != nil {
				return
			}
			if failures >= decodeFailureThreshold {
				h.log.Errorf("taxi %s exceeded decode failure threshold, closing", taxiID)
				return
			}
			continue
		}
		failures = 0
		if err := protocol.WriteMessage(conn, protocol.Ack("")); err != nil {
			return
		}
		if strings.Contains(strings.Join(fields, protocol.FieldSeparator), protocol.EndOfTransmission) {
			h.log.Infof("taxi %s sent end of transmission", taxiID)
			return
		}
	}
}

// teardown enters CLOSED: the session entry is removed, the token
// released and the peer key forgotten.
func (h *Handler) teardown(sess *Session) {
	sess.Close()
	h.registry.Remove(sess.TaxiID, sess)
	// On reconnect a newer session owns the key ring entry by now.
	if _, ok := h.registry.Get(sess.TaxiID); !ok {
		h.keys.Remove(sess.TaxiID)
	}
	if h.events != nil {
		h.events.Publish(events.SessionEvent{TaxiID: sess.TaxiID, Connected: false})
	}
	h.log.Infof("session for taxi %s closed", sess.TaxiID)
}
