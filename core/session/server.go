package session

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/kmoreau/citycab/infra/logger"
)

// Server accepts taxi connections and hands each one to the handler on
// its own goroutine. Socket reads block only the owning worker.
type Server struct {
	addr    string
	handler *Handler
	log     logger.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, h *Handler, log logger.Logger) (*Server, error) {
	if h == nil {
		return nil, fmt.Errorf("session: nil handler provided to NewServer")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Server{addr: addr, handler: h, log: log}, nil
}

// Run listens until the context is cancelled. Accept errors after
// cancellation are expected and not reported.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", s.addr, err)
	}
	s.log.Infof("coordinator listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Errorf("accept: %v", err)
			continue
		}
		go s.handler.Handle(conn)
	}
}
