package sink

import (
	"context"
	"net"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "arrayd/internal/errors"
	"arrayd/internal/frame"
	"arrayd/internal/retry"
	"arrayd/internal/transport"
)

// fakeListener answers every message with reply(msg).
func fakeListener(t *testing.T, reply func(msg []byte) frame.Reply) net.Listener {
	t.Helper()
	ln, err := transport.Bind("127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				for {
					msg, err := transport.ReadMessage(conn, transport.DefaultMaxMessageSize)
					if err != nil {
						return
					}
					if err := transport.WriteMessage(conn, reply(msg).Encode()); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln
}

func fastBackoff() *retry.Backoff {
	return &retry.Backoff{InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, MaxAttempts: 3}
}

func TestSink_SendArray(t *testing.T) {
	var got atomic.Value
	ln := fakeListener(t, func(msg []byte) frame.Reply {
		_, name, err := frame.Decode(msg)
		if err != nil {
			return frame.FromError(err)
		}
		got.Store(name)
		return frame.Success()
	})

	s := New(ln.Addr().String(), Options{Backoff: fastBackoff()})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	arr := frame.Array{Rows: 2, Cols: 2, DType: frame.Float64, Data: []float64{1, 2, 3, 4}}
	require.NoError(t, s.SendArray(ctx, "m", arr))
	assert.Equal(t, "m", got.Load())

	// A second request reuses the connection.
	require.NoError(t, s.SendArray(ctx, "n", arr))
}

func TestSink_FailureReply(t *testing.T) {
	ln := fakeListener(t, func([]byte) frame.Reply { return frame.Failure("exit status 1") })
	s := New(ln.Addr().String(), Options{Backoff: fastBackoff()})
	defer s.Close()

	err := s.SendCode(context.Background(), []byte("false"))
	var re *ncerr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "exit status 1", re.Reason)
}

func TestSink_EncodeErrorNotSent(t *testing.T) {
	s := New("127.0.0.1:1", Options{Backoff: fastBackoff()})
	err := s.SendArray(context.Background(), "", frame.Array{Rows: 1, Cols: 1, DType: frame.Float64, Data: []float64{1}})
	assert.ErrorIs(t, err, ncerr.ErrEmptyName)
}

func TestSink_ConnectRetriesThenFails(t *testing.T) {
	ln, err := transport.Bind("127.0.0.1", 0)
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	s := New(addr, Options{Backoff: fastBackoff(), Timeout: 200 * time.Millisecond})
	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
}

func TestSink_ReconnectsAfterBrokenConnection(t *testing.T) {
	var n atomic.Int32
	ln, err := transport.Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer ln.Close()

	// The first connection is dropped without a reply; later ones
	// are answered.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn, first bool) {
				defer conn.Close()
				for {
					if _, err := transport.ReadMessage(conn, 1024); err != nil {
						return
					}
					if first {
						return
					}
					transport.WriteMessage(conn, frame.Success().Encode()) //nolint:errcheck
				}
			}(conn, n.Add(1) == 1)
		}
	}()

	s := New(ln.Addr().String(), Options{Backoff: fastBackoff()})
	defer s.Close()
	ctx := context.Background()

	err = s.SendCode(ctx, []byte("x"))
	var te *ncerr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "receive", te.Op)

	require.NoError(t, s.SendCode(ctx, []byte("x")))
}

func TestSink_BreakerIgnoresFailureReplies(t *testing.T) {
	ln := fakeListener(t, func([]byte) frame.Reply { return frame.Failure("nope") })
	br := NewBreaker(1, time.Hour)
	s := New(ln.Addr().String(), Options{Backoff: fastBackoff(), Breaker: br})
	defer s.Close()

	for i := 0; i < 3; i++ {
		var re *ncerr.RemoteError
		assert.ErrorAs(t, s.SendCode(context.Background(), []byte("x")), &re)
	}
	assert.Equal(t, retry.Closed, br.State())
}

func TestSink_BreakerOpensOnTransportFailure(t *testing.T) {
	ln, err := transport.Bind("127.0.0.1", 0)
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	br := NewBreaker(1, time.Hour)
	s := New(addr, Options{Backoff: &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 1}, Breaker: br})

	assert.Error(t, s.SendCode(context.Background(), []byte("x")))
	assert.ErrorIs(t, s.SendCode(context.Background(), []byte("x")), retry.ErrOpen)
}

func TestSink_ContextCancelInterruptsRead(t *testing.T) {
	ln, err := transport.Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second) // never replies in time
	}()

	s := New(ln.Addr().String(), Options{Backoff: fastBackoff()})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.Error(t, s.SendCode(ctx, []byte("x")))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSink_RequestAfterClose(t *testing.T) {
	ln := fakeListener(t, func([]byte) frame.Reply { return frame.Success() })
	s := New(ln.Addr().String(), Options{Backoff: fastBackoff()})

	require.NoError(t, s.SendCode(context.Background(), []byte("x")))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.SendCode(context.Background(), []byte("x")), ncerr.ErrNotConnected)
	assert.ErrorIs(t, s.Connect(context.Background()), ncerr.ErrNotConnected)
	assert.NoError(t, s.Close())
}

func TestGenerateName(t *testing.T) {
	re := regexp.MustCompile(`^arr_[0-9a-f]{12}$`)
	a, b := GenerateName(), GenerateName()
	assert.Regexp(t, re, a)
	assert.Regexp(t, re, b)
	assert.NotEqual(t, a, b)
}
