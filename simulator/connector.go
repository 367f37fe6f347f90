package simulator

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net"
	"time"

	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/core/protocol"
	"github.com/kmoreau/citycab/infra/logger"
)

const (
	reconnectBackoff  = 5 * time.Second
	heartbeatInterval = 10 * time.Second
)

// Connector maintains the taxi's control connection to the coordinator:
// it authenticates, exchanges public keys, installs the issued token on
// the engine and keeps the socket alive with heartbeats. A lost
// connection is retried until the context is canceled.
type Connector struct {
	addr    string
	taxiID  string
	secret  string
	pair    *envelope.KeyPair
	engine  *Engine
	log     logger.Logger
	backoff time.Duration
}

// NewConnector wires a Connector for the given coordinator address.
func NewConnector(addr, taxiID, secret string, pair *envelope.KeyPair, engine *Engine, log logger.Logger) *Connector {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Connector{
		addr:    addr,
		taxiID:  taxiID,
		secret:  secret,
		pair:    pair,
		engine:  engine,
		log:     log,
		backoff: reconnectBackoff,
	}
}

// Run keeps a session open until the context is canceled.
func (c *Connector) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warnf("taxi %s: session ended: %v, retrying in %s", c.taxiID, err, c.backoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}

// session runs one full connect/handshake/serve cycle.
func (c *Connector) session(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial coordinator: %w", err)
	}
	defer func() { _ = conn.Close() }()

	token, coordKey, err := c.handshake(conn)
	if err != nil {
		return err
	}
	c.engine.SetCredentials(token, coordKey)
	c.log.Infof("taxi %s: authenticated with coordinator", c.taxiID)

	return c.serve(ctx, conn)
}

// handshake performs the plaintext exchange: the AUTH frame, both public
// keys, then the token acknowledgement.
func (c *Connector) handshake(conn net.Conn) (string, *rsa.PublicKey, error) {
	if err := protocol.WriteMessage(conn, protocol.Encode(protocol.OpAuth, c.taxiID, c.secret)); err != nil {
		return "", nil, fmt.Errorf("send auth frame: %w", err)
	}
	own, err := c.pair.PublicBase64()
	if err != nil {
		return "", nil, err
	}
	if err := protocol.WriteMessage(conn, []byte(own)); err != nil {
		return "", nil, fmt.Errorf("send public key: %w", err)
	}
	peerB64, err := protocol.ReadMessage(conn)
	if err != nil {
		return "", nil, fmt.Errorf("read coordinator key: %w", err)
	}
	coordKey, err := envelope.ParsePublicKey(string(peerB64))
	if err != nil {
		return "", nil, err
	}

	raw, err := protocol.ReadMessage(conn)
	if err != nil {
		return "", nil, fmt.Errorf("read token ack: %w", err)
	}
	fields, err := protocol.Decode(raw)
	if err != nil {
		return "", nil, err
	}
	if len(fields) != 2 || fields[0] != protocol.OpAck {
		return "", nil, fmt.Errorf("handshake rejected by coordinator: %v", fields)
	}
	return fields[1], coordKey, nil
}

// serve keeps the control socket warm. The coordinator acknowledges
// every heartbeat; an unanswered one means the connection is gone.
func (c *Connector) serve(ctx context.Context, conn net.Conn) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Best effort goodbye so the coordinator tears down cleanly.
			_ = protocol.WriteMessage(conn, protocol.Encode(protocol.EndOfTransmission))
			return nil
		case <-ticker.C:
			if err := protocol.WriteMessage(conn, protocol.Encode(protocol.OpPing)); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
			if _, err := protocol.ReadMessage(conn); err != nil {
				return fmt.Errorf("heartbeat unanswered: %w", err)
			}
		}
	}
}
