package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Handshake messages travel over the raw socket as length-prefixed blobs:
// a big-endian uint16 length followed by that many bytes. Frames and
// base64 key material both fit comfortably under the 64 KiB ceiling.

const maxWireLen = 1<<16 - 1

// WriteMessage writes one length-prefixed message to w.
func WriteMessage(w io.Writer, msg []byte) error {
	if len(msg) > maxWireLen {
		return fmt.Errorf("protocol: message of %d bytes exceeds wire limit", len(msg))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(msg)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

// ReadMessage reads one length-prefixed message from r.
func ReadMessage(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	msg := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
