package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer dials listener endpoints.
type TCPDialer struct {
	Timeout time.Duration
	// KeepAlive is passed to net.Dialer; 0 keeps the system default.
	KeepAlive time.Duration
}

// Dial connects to address with Nagle disabled.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Requests wait on a small reply.
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Close is a no-op.
func (d *TCPDialer) Close() error { return nil }
