// Package session manages the per-taxi socket lifecycle: handshake,
// registration check, token issuance and teardown. One handler instance
// serves exactly one connection; the registry of live sessions is shared
// across all connection workers.
package session

import (
	"net"
	"sync"
	"sync/atomic"
)

// Session is the in-memory authentication state bound to one open taxi
// connection. The token is the authorization credential for every
// encrypted status update sent during this connection's lifetime.
type Session struct {
	TaxiID string

	conn   net.Conn
	closed atomic.Bool

	mu    sync.Mutex
	token string
}

// NewSession binds a freshly issued token to an open connection.
func NewSession(taxiID, token string, conn net.Conn) *Session {
	return &Session{TaxiID: taxiID, token: token, conn: conn}
}

// Token returns the currently valid token, empty once cleared.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ClearToken invalidates the token without closing the connection. Used
// for token rotation when a taxi completes a job.
func (s *Session) ClearToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Alive reports whether the connection behind this session is still open.
func (s *Session) Alive() bool { return !s.closed.Load() }

// Close marks the session dead and closes the underlying connection.
// Safe to call more than once.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		if s.conn != nil {
			_ = s.conn.Close()
		}
	}
}

// Registry is the shared taxi-id → session table. Many connection
// workers and the dispatch orchestrator access it concurrently; it only
// exposes atomic insert-if-absent, get and remove.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Insert adds s if no session exists for its taxi. It returns the
// previous session when one was present, which the caller must close and
// replace explicitly (token scrubbing on reconnect).
func (r *Registry) Insert(s *Session) (prev *Session, inserted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[s.TaxiID]; ok {
		return old, false
	}
	r.sessions[s.TaxiID] = s
	return nil, true
}

// Replace installs s, returning the session it displaced, if any.
func (r *Registry) Replace(s *Session) (prev *Session) {
	r.mu.Lock()
	prev = r.sessions[s.TaxiID]
	r.sessions[s.TaxiID] = s
	r.mu.Unlock()
	return prev
}

// Get returns the session registered for the taxi.
func (r *Registry) Get(taxiID string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[taxiID]
	r.mu.RUnlock()
	return s, ok
}

// Remove drops the table entry for the taxi if it still points at s.
// A handler tearing down an old connection must not evict the session of
// a newer one.
func (r *Registry) Remove(taxiID string, s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[taxiID]; ok && (s == nil || cur == s) {
		delete(r.sessions, taxiID)
	}
	r.mu.Unlock()
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
