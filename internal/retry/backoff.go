// Package retry provides the backoff and circuit breaker used by the
// client sink: backoff while connecting to a listener that may not be
// bound yet, and a breaker so a dead listener fails sends fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Backoff.Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing delays.
// Zero fields take the values of DefaultBackoff.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts counts the first try; 0 retries until ctx is done.
	MaxAttempts int
	// Jitter spreads each delay by up to 25% either way.
	Jitter bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff suits a local listener that is still starting up.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		MaxAttempts:  8,
		Jitter:       true,
	}
}

// Delay returns the wait after the given failed attempt (1-based),
// before jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	initial, max, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	if mult < 1 {
		mult = 2
	}
	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// Do calls fn until it returns nil, returns a Permanent error, runs
// out of attempts or ctx is done.  fn receives the 1-based attempt.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := b.Delay(attempt)
		if b.Jitter {
			wait = jitter(wait)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-t.C:
		}
	}
}

func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	j := float64(d) + (rand.Float64()*2-1)*spread
	return time.Duration(math.Max(j, float64(time.Millisecond)))
}
