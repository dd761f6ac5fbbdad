// Package transport moves whole messages over stream connections.
// Transports handle the "how" of data movement: binding listeners,
// dialling peers and delimiting messages.  What a message means is the
// capability layer's job.
package transport

import (
	"context"
	"net"

	"arrayd/util"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}

// Bind opens a TCP listener on host:port.  Port 0 selects an
// ephemeral port; the chosen one is available from the listener's
// Addr.
func Bind(host string, port int) (net.Listener, error) {
	return net.Listen("tcp", util.FormatAddr(host, port))
}
