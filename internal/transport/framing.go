package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	ncerr "arrayd/internal/errors"
)

// PrefixSize is the length of the big-endian size prefix in front of
// every message.
const PrefixSize = 4

// DefaultMaxMessageSize bounds a single message unless configured
// otherwise.
const DefaultMaxMessageSize = 64 << 20

// ReadMessage reads one length-prefixed message from r.
//
// io.EOF is returned only when r ends cleanly before the prefix, i.e.
// the peer closed between messages.  A stream that ends part way
// through a message yields io.ErrUnexpectedEOF.  A prefix larger than
// max yields ErrMessageTooLarge without consuming the body.
func ReadMessage(r io.Reader, max int) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if max > 0 && uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ncerr.ErrMessageTooLarge, n, max)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

// WriteMessage writes msg to w behind its length prefix in a single
// Write call.
func WriteMessage(w io.Writer, msg []byte) error {
	if uint64(len(msg)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ncerr.ErrMessageTooLarge, len(msg))
	}
	out := make([]byte, PrefixSize+len(msg))
	binary.BigEndian.PutUint32(out[:PrefixSize], uint32(len(msg)))
	copy(out[PrefixSize:], msg)
	_, err := w.Write(out)
	return err
}
