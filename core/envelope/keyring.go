package envelope

import (
	"crypto/rsa"
	"sync"
)

// KeyRing stores the public keys of authenticated peers, indexed by their
// identifier. It is shared across connection workers and safe for
// concurrent use.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewKeyRing returns an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: map[string]*rsa.PublicKey{}}
}

// Register stores the public key for id, replacing any previous one. A
// reconnecting peer always presents its key again during the handshake.
func (r *KeyRing) Register(id string, key *rsa.PublicKey) {
	r.mu.Lock()
	r.keys[id] = key
	r.mu.Unlock()
}

// Lookup returns the key registered for id.
func (r *KeyRing) Lookup(id string) (*rsa.PublicKey, bool) {
	r.mu.RLock()
	key, ok := r.keys[id]
	r.mu.RUnlock()
	return key, ok
}

// Remove forgets the key registered for id.
func (r *KeyRing) Remove(id string) {
	r.mu.Lock()
	delete(r.keys, id)
	r.mu.Unlock()
}
