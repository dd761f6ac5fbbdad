package capability

import (
	"context"

	"golang.org/x/time/rate"

	ncerr "arrayd/internal/errors"
	"arrayd/internal/session"
)

// Limited wraps a capability with a token bucket.  Requests over the
// limit fail immediately with ErrRateLimited; they never wait.
type Limited struct {
	Capability Capability
	Limiter    *rate.Limiter
}

// NewLimited allows perSecond requests with the given burst.  A
// non-positive rate returns c unchanged.
func NewLimited(c Capability, perSecond float64, burst int) Capability {
	if perSecond <= 0 {
		return c
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{Capability: c, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Handle forwards to the wrapped capability when a token is available.
func (l *Limited) Handle(ctx context.Context, sess *session.Session, msg []byte) error {
	if !l.Limiter.Allow() {
		if sess != nil {
			sess.Logger.Warn("request rejected: %v", ncerr.ErrRateLimited)
		}
		return ncerr.ErrRateLimited
	}
	return l.Capability.Handle(ctx, sess, msg)
}
