// Package errors provides domain-specific error types for arrayd.
//
// The listener sorts every failure into one of two classes: content
// errors (a malformed frame, a failing handler) are answered with a
// Failure reply and the loop keeps serving; transport errors (a reply
// that cannot be written, a broken request stream, a dead endpoint)
// stop the whole listener.  The types below carry enough structure
// for callers to tell the two apart with [errors.As].
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrListenerStopped = errors.New("listener is stopped")
	ErrAlreadyStarted  = errors.New("listener already started")
	ErrNotConnected    = errors.New("not connected")
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrExecDisabled    = errors.New("code execution is disabled")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// Frame decode failures.  The texts are sent verbatim to clients as
// the Failure reason.
var (
	ErrTooShort               = errors.New("message is not long enough")
	ErrTruncatedPayload       = errors.New("message contains insufficient data")
	ErrUnsupportedElementSize = errors.New("unsupported element size")
	ErrEmptyName              = errors.New("message has zero length name field")
)

// ── Structured error types ───────────────────────────────────────────

// DecodeError reports why an array frame could not be decoded.  Kind
// is one of the ErrTooShort family and is what errors.Is matches.
type DecodeError struct {
	Kind   error
	Detail string // optional, e.g. "need 41 bytes, have 12"
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + " (" + e.Detail + ")"
}

func (e *DecodeError) Unwrap() error { return e.Kind }

// HandlerError is any failure signalled by an endpoint's handler.
// It is reported to the client and never stops the listener.
type HandlerError struct {
	Endpoint string
	Err      error
}

func (e *HandlerError) Error() string { return e.Err.Error() }

func (e *HandlerError) Unwrap() error { return e.Err }

// TransportError is a network failure.  On the listener it is always
// fatal; the client sink returns it for a broken connection.
type TransportError struct {
	Op       string // "bind", "accept", "receive" or "send"
	Endpoint string // endpoint name
	Addr     string // network address involved
	Err      error  // underlying error
}

func (e *TransportError) Error() string {
	s := e.Op
	if e.Endpoint != "" {
		s += " " + e.Endpoint
	}
	if e.Addr != "" {
		s += " " + e.Addr
	}
	return fmt.Sprintf("%s: %v", s, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is returned on the client side when the listener
// answered a request with a Failure reply.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string { return "listener replied failure: " + e.Reason }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Decode creates a DecodeError of the given kind.
func Decode(kind error, format string, args ...interface{}) *DecodeError {
	e := &DecodeError{Kind: kind}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}

// Transport creates a TransportError.
func Transport(op, endpoint string, addr net.Addr, err error) *TransportError {
	te := &TransportError{Op: op, Endpoint: endpoint, Err: err}
	if addr != nil {
		te.Addr = addr.String()
	}
	return te
}

// ── Classification helpers ───────────────────────────────────────────

// IsFatal reports whether err must stop the listener.
func IsFatal(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err is a frame decode failure.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use arrayd/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
