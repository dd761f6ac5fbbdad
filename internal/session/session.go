// Package session represents one peer connection on an endpoint.
//
// A session owns the strict request/reply cadence of its connection:
// read one complete request, write exactly one reply, repeat.
// Capabilities receive the session alongside the request so they can
// log with the peer's context without touching the raw connection.
package session

import (
	"net"

	"github.com/google/uuid"

	"arrayd/internal/frame"
	"arrayd/internal/transport"
	"arrayd/util"
)

// Session encapsulates the runtime context for a single peer.
type Session struct {
	ID       string
	Endpoint string
	Conn     net.Conn
	Logger   *util.Logger

	// MaxMessageSize bounds a single request; 0 means
	// transport.DefaultMaxMessageSize.
	MaxMessageSize int
}

// New creates a Session for a connection accepted on endpoint.
func New(endpoint string, conn net.Conn, maxSize int, logger *util.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:             id,
		Endpoint:       endpoint,
		Conn:           conn,
		Logger:         logger.With("peer", id[:8], "endpoint", endpoint),
		MaxMessageSize: maxSize,
	}
}

// ReadRequest blocks until one complete request has arrived.
// io.EOF means the peer closed cleanly between requests.
func (s *Session) ReadRequest() ([]byte, error) {
	max := s.MaxMessageSize
	if max <= 0 {
		max = transport.DefaultMaxMessageSize
	}
	return transport.ReadMessage(s.Conn, max)
}

// WriteReply sends the reply for the request last read.
func (s *Session) WriteReply(r frame.Reply) error {
	return transport.WriteMessage(s.Conn, r.Encode())
}

// RemoteAddr returns the peer address, or nil when the session has no
// connection.
func (s *Session) RemoteAddr() net.Addr {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.RemoteAddr()
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}
