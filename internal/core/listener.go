package core

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ncerr "arrayd/internal/errors"
	"arrayd/internal/frame"
	"arrayd/internal/metrics"
	"arrayd/internal/session"
	"arrayd/internal/transport"
	"arrayd/util"
)

// DefaultPollInterval bounds how long the loop waits for a request
// before it re-checks the stop flag.
const DefaultPollInterval = 20 * time.Millisecond

// State is the lifecycle state of a Listener.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options tune a Listener.  The zero value is usable.
type Options struct {
	PollInterval   time.Duration
	MaxMessageSize int
	Logger         *util.Logger
	Metrics        *metrics.Collector // nil disables metrics
	Tracer         trace.Tracer       // nil uses the global provider
}

// request is one complete message waiting for the loop.
type request struct {
	ep   *Endpoint
	sess *session.Session
	msg  []byte
	done chan struct{} // closed once the reply is written or abandoned
}

// Listener serves every endpoint of a Registry.  One goroutine, the
// dispatch loop, invokes capabilities and writes replies; accept and
// reader goroutines only move bytes.  Each peer has at most one
// request outstanding, and every request gets exactly one reply.
type Listener struct {
	registry *Registry
	opts     Options
	logger   *util.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer

	state    atomic.Int32
	stopping atomic.Bool
	handled  atomic.Int64

	requests chan *request
	fatal    chan error
	stop     chan struct{} // closed by the first Stop
	stopOnce sync.Once
	quit     chan struct{} // closed when the loop starts shutting down
	done     chan struct{} // closed once everything is released

	mu        sync.Mutex
	endpoints []*Endpoint
	conns     map[net.Conn]struct{}
	err       error
	wg        sync.WaitGroup
}

// NewListener returns an idle listener for the endpoints in reg.
func NewListener(reg *Registry, opts Options) *Listener {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("arrayd/internal/core")
	}
	return &Listener{
		registry: reg,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		requests: make(chan *request),
		fatal:    make(chan error, 1),
		stop:     make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────

// Start binds every endpoint and starts serving.  Binding happens
// before Start returns, so Port and Addrs are valid as soon as it
// succeeds.  A bind failure leaves the listener stopped.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch State(l.state.Load()) {
	case StateRunning:
		return ncerr.ErrAlreadyStarted
	case StateStopped:
		return ncerr.ErrListenerStopped
	}

	endpoints := l.registry.freeze()
	for _, ep := range endpoints {
		ln, err := transport.Bind(ep.Host, ep.Port)
		if err != nil {
			for _, bound := range endpoints {
				if bound.ln != nil {
					bound.ln.Close()
				}
			}
			l.err = ncerr.Transport("bind", ep.Name, nil, err)
			l.state.Store(int32(StateStopped))
			close(l.quit)
			close(l.done)
			return l.err
		}
		ep.ln = ln
		l.logger.Verbose("endpoint %s (%s) listening on %s", ep.Name, ep.Kind, ln.Addr())
	}
	l.endpoints = endpoints
	l.state.Store(int32(StateRunning))

	for _, ep := range endpoints {
		l.wg.Add(1)
		go l.accept(ep)
	}
	go l.loop()
	return nil
}

// Stop asks the loop to exit.  A request being handled completes
// first; requests that reach the loop afterwards are dropped without a
// reply.  The returned channel is closed once every endpoint and peer
// connection has been released.  Stop is idempotent, and a stopped
// listener cannot be restarted.
func (l *Listener) Stop() <-chan struct{} {
	l.stopping.Store(true)
	l.stopOnce.Do(func() { close(l.stop) })

	l.mu.Lock()
	if State(l.state.Load()) == StateIdle {
		l.state.Store(int32(StateStopped))
		close(l.quit)
		close(l.done)
	}
	l.mu.Unlock()

	return l.done
}

// Done is closed once the listener has fully stopped.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Wait blocks until the listener has stopped.  It returns nil after a
// cooperative stop and the fatal *errors.TransportError otherwise.
func (l *Listener) Wait() error {
	<-l.done
	return l.err
}

// Run starts the listener, stops it when ctx is done, and waits.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Start(); err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.done:
		}
	}()
	return l.Wait()
}

// State returns the current lifecycle state.
func (l *Listener) State() State { return State(l.state.Load()) }

// Handled returns how many requests have been answered.
func (l *Listener) Handled() int64 { return l.handled.Load() }

// Port returns the bound port of the named endpoint, or 0.
func (l *Listener) Port(name string) int {
	ep, ok := l.registry.Lookup(name)
	if !ok {
		return 0
	}
	return util.PortOf(ep.Addr())
}

// Addrs returns the bound address of every endpoint by name.
func (l *Listener) Addrs() map[string]net.Addr {
	out := make(map[string]net.Addr)
	for _, ep := range l.registry.Endpoints() {
		if a := ep.Addr(); a != nil {
			out[ep.Name] = a
		}
	}
	return out
}

// ── Dispatch loop ────────────────────────────────────────────────────

func (l *Listener) loop() {
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	var err error
	for err == nil && !l.stopping.Load() {
		select {
		case req := <-l.requests:
			if l.stopping.Load() {
				// Stop raced the request; it is dropped unanswered
				// and its peer is closed by shutdown.
				req.sess.Logger.Debug("dropping request received after stop")
				continue
			}
			err = l.handle(req)
		case err = <-l.fatal:
		case <-l.stop:
		case <-ticker.C:
		}
	}
	l.shutdown(err)
}

// handle runs one request through its endpoint's capability and writes
// the reply.  Only a failed reply write is returned; capability errors
// become Failure replies.
func (l *Listener) handle(req *request) error {
	defer close(req.done)

	ep, sess := req.ep, req.sess
	start := time.Now()

	ctx, span := l.tracer.Start(context.Background(), "arrayd.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("arrayd.endpoint", ep.Name),
			attribute.String("arrayd.endpoint.kind", string(ep.Kind)),
			attribute.String("arrayd.peer", sess.ID),
			attribute.Int("arrayd.request.bytes", len(req.msg)),
		))
	defer span.End()

	err := ep.Capability.Handle(ctx, sess, req.msg)
	reply := frame.FromError(err)
	if err != nil {
		herr := &ncerr.HandlerError{Endpoint: ep.Name, Err: err}
		span.RecordError(herr)
		span.SetStatus(codes.Error, reply.Reason)
		l.metrics.RecordError(herr.Error())
		sess.Logger.Warn("request failed: %v", err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	wire := reply.Encode()
	if werr := sess.WriteReply(reply); werr != nil {
		te := ncerr.Transport("send", ep.Name, sess.RemoteAddr(), werr)
		span.RecordError(te)
		span.SetStatus(codes.Error, te.Error())
		l.metrics.RecordError(te.Error())
		return te
	}

	l.handled.Add(1)
	l.metrics.BytesSent(ep.Name, int64(len(wire)+transport.PrefixSize))
	l.metrics.RequestHandled(ep.Name, reply.OK, time.Since(start))
	sess.Logger.Debug("replied %q in %v", reply, time.Since(start))
	return nil
}

// shutdown releases every endpoint and connection, then publishes the
// exit error.
func (l *Listener) shutdown(err error) {
	l.mu.Lock()
	l.state.Store(int32(StateStopped))
	close(l.quit)
	for _, ep := range l.endpoints {
		ep.ln.Close()
	}
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()

	if err != nil {
		l.logger.Error("listener stopped: %v", err)
	} else {
		l.logger.Verbose("listener stopped after %d requests", l.handled.Load())
	}
	l.err = err
	close(l.done)
}

// reportFatal hands a receive-side error to the loop.  The first one
// wins.
func (l *Listener) reportFatal(err error) {
	select {
	case l.fatal <- err:
	default:
	}
}

func (l *Listener) quitting() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// ── Accept and read ──────────────────────────────────────────────────

func (l *Listener) accept(ep *Endpoint) {
	defer l.wg.Done()

	for {
		conn, err := ep.ln.Accept()
		if err != nil {
			if !l.quitting() {
				l.reportFatal(ncerr.Transport("accept", ep.Name, ep.Addr(), err))
			}
			return
		}
		if !l.track(conn) {
			conn.Close()
			return
		}
		l.wg.Add(1)
		go l.serve(ep, conn)
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quitting() {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	conn.Close()
}

// serve reads requests from one peer, one at a time.
func (l *Listener) serve(ep *Endpoint, conn net.Conn) {
	defer l.wg.Done()
	defer l.untrack(conn)

	l.metrics.PeerOpened()
	defer l.metrics.PeerClosed()

	sess := session.New(ep.Name, conn, l.opts.MaxMessageSize, l.logger)
	sess.Logger.Verbose("peer connected from %s", conn.RemoteAddr())

	for {
		msg, err := sess.ReadRequest()
		if err != nil {
			switch {
			case l.quitting():
			case peerGone(err):
				sess.Logger.Verbose("peer disconnected")
			default:
				l.reportFatal(ncerr.Transport("receive", ep.Name, conn.RemoteAddr(), err))
			}
			return
		}
		l.metrics.BytesReceived(ep.Name, int64(len(msg)+transport.PrefixSize))

		req := &request{ep: ep, sess: sess, msg: msg, done: make(chan struct{})}
		select {
		case l.requests <- req:
		case <-l.quit:
			return
		}
		select {
		case <-req.done:
		case <-l.quit:
			return
		}
	}
}

// peerGone reports a peer that went away between requests.
func peerGone(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET)
}
