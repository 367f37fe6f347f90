// Package envelope implements the hybrid encryption layer wrapping every
// payload exchanged between the coordinator and a taxi after the
// handshake. Each peer holds one long-lived RSA key pair; every message
// is encrypted with a fresh AES-256-GCM key, and that key travels
// RSA-OAEP-encrypted alongside the ciphertext.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	rsaBits    = 2048
	aesKeySize = 32
)

// Separator splits the encrypted key from the encrypted payload on the
// wire: base64(key) + "#" + base64(nonce||ciphertext).
const Separator = "#"

var (
	// ErrMalformed is returned for envelopes that do not split into an
	// encrypted key and an encrypted payload.
	ErrMalformed = errors.New("envelope: malformed message")
	// ErrDecrypt is returned when either the key or the payload fails to
	// decrypt. It is a per-message error and never fatal to a session.
	ErrDecrypt = errors.New("envelope: decryption failed")
)

// KeyPair is a peer's long-lived asymmetric identity, generated once at
// startup.
type KeyPair struct {
	priv *rsa.PrivateKey
}

// NewKeyPair generates a fresh RSA-2048 key pair.
func NewKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate key pair: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// Public returns the public half of the pair.
func (k *KeyPair) Public() *rsa.PublicKey { return &k.priv.PublicKey }

// PublicBase64 encodes the public key as base64(PKIX DER) for the
// plaintext key exchange right after authentication.
func (k *KeyPair) PublicBase64() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k.Public())
	if err != nil {
		return "", fmt.Errorf("envelope: marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePublicKey decodes a base64(PKIX DER) RSA public key received from
// a peer.
func ParsePublicKey(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("envelope: decode public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("envelope: parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("envelope: peer key is %T, want RSA", key)
	}
	return pub, nil
}

// Seal encrypts payload for the holder of peer. A new symmetric key is
// generated on every call; keys are never reused across messages.
func Seal(payload []byte, peer *rsa.PublicKey) (string, error) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("envelope: symmetric key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("envelope: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("envelope: gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("envelope: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, payload, nil)

	encKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, peer, key, nil)
	if err != nil {
		return "", fmt.Errorf("envelope: encrypt key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encKey) + Separator +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts an envelope addressed to this key pair.
func (k *KeyPair) Open(msg string) ([]byte, error) {
	parts := strings.SplitN(msg, Separator, 2)
	if len(parts) != 2 {
		return nil, ErrMalformed
	}
	encKey, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.priv, encKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrDecrypt, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: cipher: %v", ErrDecrypt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm: %v", ErrDecrypt, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrMalformed
	}
	payload, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecrypt, err)
	}
	return payload, nil
}
