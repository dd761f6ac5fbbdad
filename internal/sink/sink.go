// Package sink is the client side of the listener protocol: it sends
// named arrays and code blocks and turns the listener's reply into an
// error value.
package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	ncerr "arrayd/internal/errors"
	"arrayd/internal/frame"
	"arrayd/internal/retry"
	"arrayd/internal/transport"
	"arrayd/util"
)

// Options tune a Sink.  The zero value is usable.
type Options struct {
	// Timeout bounds each dial attempt.
	Timeout time.Duration
	// Backoff governs Connect; nil uses retry.DefaultBackoff.
	Backoff *retry.Backoff
	// Breaker, if set, fails requests fast after repeated transport
	// failures.  Failure replies do not count against it.
	Breaker *retry.Breaker
	// MaxReplySize bounds a reply read (default 64 KiB).
	MaxReplySize int
	Logger       *util.Logger
}

// Sink is a connection to one listener endpoint.  Requests are
// serialized: the protocol allows one outstanding request per
// connection.
type Sink struct {
	addr   string
	opts   Options
	dialer transport.Dialer

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// New returns an unconnected sink for the endpoint at addr.
func New(addr string, opts Options) *Sink {
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultBackoff()
	}
	if opts.MaxReplySize <= 0 {
		opts.MaxReplySize = 64 << 10
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &Sink{
		addr:   addr,
		opts:   opts,
		dialer: &transport.TCPDialer{Timeout: opts.Timeout},
	}
}

// NewBreaker returns a circuit breaker that only counts transport
// failures, suitable for Options.Breaker.
func NewBreaker(maxFailures int, cooldown time.Duration) *retry.Breaker {
	return retry.NewBreaker(retry.BreakerConfig{
		MaxFailures: maxFailures,
		Cooldown:    cooldown,
		Counts: func(err error) bool {
			var re *ncerr.RemoteError
			return !ncerr.As(err, &re)
		},
	})
}

// Addr returns the endpoint address.
func (s *Sink) Addr() string { return s.addr }

// Connect dials the endpoint, retrying with backoff while the listener
// is not reachable yet.
func (s *Sink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Sink) connectLocked(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("%s: sink closed: %w", s.addr, ncerr.ErrNotConnected)
	}
	if s.conn != nil {
		return nil
	}
	b := *s.opts.Backoff
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.opts.Logger.Verbose("connect %s attempt %d: %v (retry in %v)", s.addr, attempt, err, wait.Truncate(time.Millisecond))
	}
	return b.Do(ctx, func(int) error {
		conn, err := s.dialer.Dial(ctx, "tcp", s.addr)
		var dnsErr *net.DNSError
		if ncerr.As(err, &dnsErr) && dnsErr.IsNotFound {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		s.conn = conn
		s.opts.Logger.Verbose("connected to %s", conn.RemoteAddr())
		return nil
	})
}

// SendArray stores arr under name on the listener.  A Failure reply
// is returned as *errors.RemoteError.
func (s *Sink) SendArray(ctx context.Context, name string, arr frame.Array) error {
	msg, err := frame.Encode(name, arr)
	if err != nil {
		return err
	}
	return s.request(ctx, msg)
}

// SendCode asks the listener to execute code.
func (s *Sink) SendCode(ctx context.Context, code []byte) error {
	return s.request(ctx, code)
}

func (s *Sink) request(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%s: sink closed: %w", s.addr, ncerr.ErrNotConnected)
	}
	do := func() error { return s.roundTrip(ctx, msg) }
	if s.opts.Breaker != nil {
		return s.opts.Breaker.Execute(do)
	}
	return do()
}

func (s *Sink) roundTrip(ctx context.Context, msg []byte) error {
	if err := s.connectLocked(ctx); err != nil {
		return err
	}
	conn := s.conn

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl) //nolint:errcheck
	} else {
		conn.SetDeadline(time.Time{}) //nolint:errcheck
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	if err := transport.WriteMessage(conn, msg); err != nil {
		return s.fail("send", err)
	}
	raw, err := transport.ReadMessage(conn, s.opts.MaxReplySize)
	if err != nil {
		return s.fail("receive", err)
	}
	return frame.ParseReply(raw).Err()
}

// fail drops the connection so the next request redials.
func (s *Sink) fail(op string, err error) error {
	addr := s.conn.RemoteAddr()
	s.conn.Close()
	s.conn = nil
	return ncerr.Transport(op, "", addr, err)
}

// Close closes the connection, if any.  Later requests fail with
// errors.ErrNotConnected.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// GenerateName returns a fresh array name: "arr_" followed by 12 hex
// digits.
func GenerateName() string {
	id := uuid.New()
	return fmt.Sprintf("arr_%s", hex.EncodeToString(id[:6]))
}
