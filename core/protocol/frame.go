package protocol

import (
	"bytes"
	"errors"
	"strings"
)

// Control bytes of the framed text protocol.
const (
	STX byte = 0x02
	ETX byte = 0x03

	// FieldSeparator joins the operation code and its fields.
	FieldSeparator = "#"
)

// Operation codes and markers used on the handshake socket.
const (
	OpAuth = "AUTH"
	OpAck  = "ACK"
	OpNack = "NACK"
	OpPing = "PING"

	// EndOfTransmission terminates the serving loop.
	EndOfTransmission = "EOT"
)

// ErrInvalidFrame is returned when a frame is structurally broken or its
// checksum does not match.
var ErrInvalidFrame = errors.New("protocol: invalid frame")

// LRC computes the longitudinal redundancy check of data: the running XOR
// of every byte.
func LRC(data []byte) byte {
	var lrc byte
	for _, b := range data {
		lrc ^= b
	}
	return lrc
}

// Encode builds a frame: STX, the operation code and fields joined by '#',
// ETX, and the LRC of the content between STX and ETX.
func Encode(op string, fields ...string) []byte {
	var content strings.Builder
	content.WriteString(op)
	for _, f := range fields {
		content.WriteString(FieldSeparator)
		content.WriteString(f)
	}
	data := []byte(content.String())

	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, STX)
	frame = append(frame, data...)
	frame = append(frame, ETX, LRC(data))
	return frame
}

// Decode validates a frame and returns its fields, operation code first.
// It fails with ErrInvalidFrame when the frame does not start with STX,
// does not carry ETX in the second-to-last position, or the trailing LRC
// does not match the recomputed checksum.
func Decode(frame []byte) ([]string, error) {
	if len(frame) < 4 {
		return nil, ErrInvalidFrame
	}
	if frame[0] != STX || frame[len(frame)-2] != ETX {
		return nil, ErrInvalidFrame
	}
	data := frame[1 : len(frame)-2]
	if LRC(data) != frame[len(frame)-1] {
		return nil, ErrInvalidFrame
	}
	return strings.Split(string(data), FieldSeparator), nil
}

// Content returns the raw bytes between STX and ETX without validating the
// checksum. It is used for cheap terminal-marker checks on already decoded
// traffic.
func Content(frame []byte) []byte {
	end := bytes.IndexByte(frame, ETX)
	if len(frame) < 2 || frame[0] != STX || end < 0 {
		return nil
	}
	return frame[1:end]
}

// Ack builds a positive acknowledgement frame, with the session token as
// its single field when one is supplied.
func Ack(token string) []byte {
	if token == "" {
		return Encode(OpAck)
	}
	return Encode(OpAck, token)
}

// Nack builds a negative acknowledgement frame.
func Nack() []byte { return Encode(OpNack) }
