package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned, wrapped, while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// State is a breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures consecutive counted failures open the breaker
	// (default 5).
	MaxFailures int
	// Cooldown is how long the breaker stays open before letting a
	// single trial request through (default 30s).
	Cooldown time.Duration
	// Counts reports whether err counts as a failure.  nil counts
	// every error.
	Counts func(err error) bool
	// OnStateChange runs under the breaker lock.
	OnStateChange func(from, to State)
}

// Breaker fails calls fast after repeated failures.  While open it
// rejects everything; after Cooldown one trial request is let through, and its
// outcome closes or re-opens the breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing  bool
	now      func() time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive counted failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trialing = false
	b.setState(Closed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		left := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if left > 0 {
			return fmt.Errorf("%w: %d consecutive failures, retry in %v",
				ErrOpen, b.failures, left.Truncate(time.Millisecond))
		}
		b.setState(HalfOpen)
		b.trialing = true
	case HalfOpen:
		if b.trialing {
			return fmt.Errorf("%w: trial request in flight", ErrOpen)
		}
		b.trialing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialing = false
	if err == nil || (b.cfg.Counts != nil && !b.cfg.Counts(err)) {
		b.failures = 0
		b.setState(Closed)
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.MaxFailures {
		b.openedAt = b.now()
		b.setState(Open)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
