package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		op     string
		fields []string
	}{
		{op: "AUTH", fields: []string{"taxi-1", "token123"}},
		{op: "ACK", fields: nil},
		{op: "ACK", fields: []string{"0b5fce86-9c14-4d36-9d4e-1f0b8a1f2c77"}},
		{op: "PING", fields: nil},
		{op: "STATUS", fields: []string{"taxi-7", "12", "19", "EN_ROUTE_TO_PICKUP"}},
		{op: "X", fields: []string{"", ""}},
	}
	for _, tc := range cases {
		frame := Encode(tc.op, tc.fields...)
		got, err := Decode(frame)
		require.NoError(t, err, "frame %q", frame)
		want := append([]string{tc.op}, tc.fields...)
		assert.Equal(t, want, got)
	}
}

func TestDecodeRejectsBitFlips(t *testing.T) {
	frame := Encode("AUTH", "taxi-1", "token123")
	// Flip every bit of every content byte: the LRC must catch each one.
	for i := 1; i < len(frame)-2; i++ {
		for bit := uint(0); bit < 8; bit++ {
			mut := append([]byte(nil), frame...)
			mut[i] ^= 1 << bit
			if _, err := Decode(mut); err == nil {
				t.Fatalf("bit %d of byte %d flipped, decode still valid", bit, i)
			}
		}
	}
}

func TestDecodeStructuralErrors(t *testing.T) {
	valid := Encode("ACK")
	cases := map[string][]byte{
		"empty":       {},
		"too short":   {STX, ETX, 0},
		"missing stx": append([]byte{'x'}, valid[1:]...),
		"missing etx": {STX, 'A', 'C', 'K', 'x', 0},
		"bad lrc":     {STX, 'A', 'C', 'K', ETX, 0xFF},
	}
	for name, frame := range cases {
		if _, err := Decode(frame); err == nil {
			t.Errorf("%s: expected ErrInvalidFrame", name)
		}
	}
}

func TestContent(t *testing.T) {
	assert.Equal(t, []byte("ACK#tok"), Content(Encode("ACK", "tok")))
	assert.Nil(t, Content([]byte("no frame")))
	assert.Nil(t, Content(nil))
}

func TestWireRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msgs := [][]byte{
		Encode("AUTH", "taxi-1", "token123"),
		[]byte("a base64 public key blob"),
		{},
	}
	for _, m := range msgs {
		require.NoError(t, WriteMessage(&buf, m))
	}
	for _, want := range msgs {
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestWriteMessageTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMessage(&buf, make([]byte, 1<<16))
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}
