// Package capability defines what the listener does with a request.
// Each Capability encapsulates a single behaviour (store an array,
// execute code, etc.) and receives the peer's Session alongside the
// message, which keeps capabilities testable and decoupled from
// transport details.
package capability

import (
	"context"

	"arrayd/internal/session"
)

// Capability handles one request.  A nil error is answered with
// Success; any error is answered with Failure carrying err.Error().
// Capabilities never write to the session themselves: the dispatch
// loop owns the reply.
type Capability interface {
	Handle(ctx context.Context, sess *session.Session, msg []byte) error
}

// Func adapts an ordinary function to the Capability interface.
type Func func(ctx context.Context, sess *session.Session, msg []byte) error

// Handle calls f.
func (f Func) Handle(ctx context.Context, sess *session.Session, msg []byte) error {
	return f(ctx, sess, msg)
}
