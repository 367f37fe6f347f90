package simulator

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/kmoreau/citycab/infra/logger"
)

// SensorListener accepts connections from onboard sensors and maps their
// line feed onto the engine: any reading other than OK stops the taxi,
// OK resumes it. Several sensors may connect; any KO wins.
type SensorListener struct {
	addr   string
	engine *Engine
	log    logger.Logger
}

// NewSensorListener wires a listener for the given bind address.
func NewSensorListener(addr string, engine *Engine, log logger.Logger) *SensorListener {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &SensorListener{addr: addr, engine: engine, log: log}
}

// Run accepts sensor connections until the context is canceled.
func (l *SensorListener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	l.log.Infof("sensor listener on %s", l.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go l.consume(conn)
	}
}

func (l *SensorListener) consume(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reading := strings.TrimSpace(scanner.Text())
		if reading == "" {
			continue
		}
		l.engine.SetStopped(reading != SensorOK)
	}
}

// Sensor reading values on the wire.
const (
	SensorOK = "OK"
	SensorKO = "KO"
)

// SensorFeed is the sensor-process side: it dials a taxi's sensor port
// and emits a reading every second. The reading flips between OK and KO
// on demand, driven by the source function.
type SensorFeed struct {
	addr    string
	cadence time.Duration
	source  func() string
	log     logger.Logger
}

// NewSensorFeed wires a feed emitting source() at the given cadence.
func NewSensorFeed(addr string, cadence time.Duration, source func() string, log logger.Logger) *SensorFeed {
	if cadence <= 0 {
		cadence = time.Second
	}
	if source == nil {
		source = func() string { return SensorOK }
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &SensorFeed{addr: addr, cadence: cadence, source: source, log: log}
}

// Run dials the taxi and streams readings, reconnecting on failure until
// the context is canceled.
func (f *SensorFeed) Run(ctx context.Context) error {
	for {
		if err := f.stream(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warnf("sensor stream ended: %v, retrying in %s", err, reconnectBackoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectBackoff):
		}
	}
}

func (f *SensorFeed) stream(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(f.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := conn.Write([]byte(f.source() + "\n")); err != nil {
				return err
			}
		}
	}
}
