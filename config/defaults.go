package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost binds both endpoints on every interface.
	DefaultHost = "0.0.0.0"

	// DefaultServer is where send/exec look for a listener.
	DefaultServer = "127.0.0.1"

	// DefaultPollInterval bounds how long the dispatch loop waits for a
	// request before re-checking the stop flag.
	DefaultPollInterval = 20 * time.Millisecond

	// DefaultMaxMessageSize caps a single request.
	DefaultMaxMessageSize = 64 << 20

	// DefaultExecRate and DefaultExecBurst limit code requests.
	DefaultExecRate  = 5.0
	DefaultExecBurst = 5

	// DefaultConnectTimeout is the per-attempt dial timeout.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultConnectAttempts is how many dials the client tries.
	DefaultConnectAttempts = 5

	// DefaultBreakerFailures consecutive transport failures make the
	// client fail the remaining sends fast for DefaultBreakerCooldown.
	DefaultBreakerFailures = 2
	DefaultBreakerCooldown = 10 * time.Second

	// DefaultRedisChannel is the pub/sub channel for update events.
	DefaultRedisChannel = "arrayd:updates"

	// DefaultEventBuffer is the per-subscriber event buffer.
	DefaultEventBuffer = 64

	// DefaultVerbosity prints errors, warnings and info.
	DefaultVerbosity = 1

	// DefaultLogFormat picks console on a terminal, JSON otherwise.
	DefaultLogFormat = "auto"

	// DefaultGracePeriod is how long shutdown waits for the inspection
	// server to drain.
	DefaultGracePeriod = 5 * time.Second
)
