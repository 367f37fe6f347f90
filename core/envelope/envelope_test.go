package envelope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	pair, err := NewKeyPair()
	require.NoError(t, err)

	payloads := []string{
		"",
		"short",
		`{"taxi_id":"taxi-1","x":4,"y":9,"state":"EN_ROUTE_TO_PICKUP","token":"tok"}`,
		strings.Repeat("long payload ", 512),
	}
	for _, p := range payloads {
		sealed, err := Seal([]byte(p), pair.Public())
		require.NoError(t, err)
		got, err := pair.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, p, string(got))
	}
}

func TestSealFreshKeyPerMessage(t *testing.T) {
	pair, err := NewKeyPair()
	require.NoError(t, err)

	a, err := Seal([]byte("same payload"), pair.Public())
	require.NoError(t, err)
	b, err := Seal([]byte("same payload"), pair.Public())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	alice, err := NewKeyPair()
	require.NoError(t, err)
	mallory, err := NewKeyPair()
	require.NoError(t, err)

	sealed, err := Seal([]byte("for alice only"), alice.Public())
	require.NoError(t, err)

	_, err = mallory.Open(sealed)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestOpenMalformed(t *testing.T) {
	pair, err := NewKeyPair()
	require.NoError(t, err)

	for _, msg := range []string{"", "no separator", "!!!#???", "Zm9v#"} {
		_, err := pair.Open(msg)
		require.Error(t, err, "msg %q", msg)
	}
}

func TestPublicKeyExchangeEncoding(t *testing.T) {
	pair, err := NewKeyPair()
	require.NoError(t, err)

	b64, err := pair.PublicBase64()
	require.NoError(t, err)
	pub, err := ParsePublicKey(b64)
	require.NoError(t, err)
	assert.True(t, pair.Public().Equal(pub))

	_, err = ParsePublicKey("not base64!!")
	require.Error(t, err)
}

func TestKeyRing(t *testing.T) {
	ring := NewKeyRing()
	pair, err := NewKeyPair()
	require.NoError(t, err)

	_, ok := ring.Lookup("taxi-1")
	assert.False(t, ok)

	ring.Register("taxi-1", pair.Public())
	got, ok := ring.Lookup("taxi-1")
	require.True(t, ok)
	assert.True(t, pair.Public().Equal(got))

	ring.Remove("taxi-1")
	_, ok = ring.Lookup("taxi-1")
	assert.False(t, ok)
}
