// Package config defines the runtime configuration for arrayd: the
// listener's endpoints, the client's target, the optional inspection
// and event surfaces, and logging.
package config

import (
	"fmt"
	"net"
	"time"

	ncerr "arrayd/internal/errors"
	"arrayd/util"
)

// Modes select what the process does.
const (
	ModeListen = "listen"
	ModeSend   = "send"
	ModeExec   = "exec"
)

// Config holds every tuneable for a single arrayd process.
type Config struct {
	Mode string

	// ── Listener ─────────────────────────────────────────────────────
	Host           string // bind host for both endpoints
	DataPort       int    // array endpoint; 0 = ephemeral
	CodePort       int    // code endpoint; 0 = ephemeral
	AllowExec      bool
	PollInterval   time.Duration
	MaxMessageSize int
	ExecRate       float64 // code requests per second; 0 = unlimited
	ExecBurst      int

	// ── Client ───────────────────────────────────────────────────────
	Server          string // listener host for send/exec
	ConnectTimeout  time.Duration
	ConnectAttempts int
	ArrayName       string // send: empty = generated
	Input           string   // send/exec: file path, "-" = stdin
	Inputs          []string // send: several files, one array each
	BreakerFailures int      // 0 disables the client breaker
	BreakerCooldown time.Duration
	Float32         bool   // send: encode as float32

	// ── Inspection / events ──────────────────────────────────────────
	InspectAddr  string // "" = disabled
	RedisAddr    string // "" = disabled
	RedisChannel string
	EventBuffer  int

	// ── Output ───────────────────────────────────────────────────────
	Verbose   int
	LogFormat string
	LogFile   string
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Mode:            ModeListen,
		Host:            DefaultHost,
		PollInterval:    DefaultPollInterval,
		MaxMessageSize:  DefaultMaxMessageSize,
		ExecRate:        DefaultExecRate,
		ExecBurst:       DefaultExecBurst,
		Server:          DefaultServer,
		ConnectTimeout:  DefaultConnectTimeout,
		ConnectAttempts: DefaultConnectAttempts,
		BreakerFailures: DefaultBreakerFailures,
		BreakerCooldown: DefaultBreakerCooldown,
		Input:           "-",
		RedisChannel:    DefaultRedisChannel,
		EventBuffer:     DefaultEventBuffer,
		Verbose:         DefaultVerbosity,
		LogFormat:       DefaultLogFormat,
	}
}

// DataAddr is the client-side address of the array endpoint.
func (c *Config) DataAddr() string {
	return util.FormatAddr(c.Server, c.DataPort)
}

// CodeAddr is the client-side address of the code endpoint.
func (c *Config) CodeAddr() string {
	return util.FormatAddr(c.Server, c.CodePort)
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError with a hint where one helps.
func (c *Config) Validate() error {
	if err := validPort("data-port", c.DataPort); err != nil {
		return err
	}
	if err := validPort("code-port", c.CodePort); err != nil {
		return err
	}
	if c.LogFormat != "auto" && c.LogFormat != "console" && c.LogFormat != "json" {
		return &ncerr.ConfigError{
			Field: "log-format", Value: c.LogFormat,
			Message: "unknown log format",
			Hint:    "use auto, console or json",
		}
	}

	switch c.Mode {
	case ModeListen:
		return c.validateListen()
	case ModeSend:
		if c.DataPort == 0 {
			return &ncerr.ConfigError{
				Field: "data-port", Message: "send requires the listener's data port",
				Hint: "the listener prints its ports on startup",
			}
		}
	case ModeExec:
		if c.CodePort == 0 {
			return &ncerr.ConfigError{
				Field: "code-port", Message: "exec requires the listener's code port",
				Hint: "the listener prints its ports on startup",
			}
		}
	default:
		return &ncerr.ConfigError{Field: "mode", Value: c.Mode, Message: "unknown mode"}
	}

	if c.Server == "" {
		return &ncerr.ConfigError{Field: "server", Message: "listener host is required"}
	}
	if c.ConnectAttempts < 1 {
		return &ncerr.ConfigError{
			Field: "connect-attempts", Value: c.ConnectAttempts,
			Message: "must be at least 1",
		}
	}
	if c.BreakerFailures < 0 {
		return &ncerr.ConfigError{
			Field: "breaker-failures", Value: c.BreakerFailures,
			Message: "must not be negative", Hint: "use 0 to disable the breaker",
		}
	}
	if c.BreakerFailures > 0 && c.BreakerCooldown <= 0 {
		return &ncerr.ConfigError{Field: "breaker-cooldown", Value: c.BreakerCooldown, Message: "must be positive"}
	}
	if c.ArrayName != "" && len(c.Inputs) > 1 {
		return &ncerr.ConfigError{
			Field: "name", Value: c.ArrayName,
			Message: "cannot name more than one array",
			Hint:    "arrays sent from several files are named after the files",
		}
	}
	return nil
}

func (c *Config) validateListen() error {
	if c.DataPort != 0 && c.DataPort == c.CodePort {
		return &ncerr.ConfigError{
			Field: "code-port", Value: c.CodePort,
			Message: "data and code endpoints cannot share a port",
			Hint:    "use 0 to pick a free port",
		}
	}
	if c.PollInterval <= 0 {
		return &ncerr.ConfigError{
			Field: "poll-interval", Value: c.PollInterval,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %v", DefaultPollInterval),
		}
	}
	if c.MaxMessageSize < 9 {
		return &ncerr.ConfigError{
			Field: "max-message-size", Value: c.MaxMessageSize,
			Message: "must hold at least an array header (9 bytes)",
		}
	}
	if c.ExecRate < 0 {
		return &ncerr.ConfigError{Field: "exec-rate", Value: c.ExecRate, Message: "must not be negative"}
	}
	if c.EventBuffer < 1 {
		return &ncerr.ConfigError{Field: "event-buffer", Value: c.EventBuffer, Message: "must be at least 1"}
	}
	if c.InspectAddr != "" {
		if _, _, err := net.SplitHostPort(c.InspectAddr); err != nil {
			return &ncerr.ConfigError{
				Field: "inspect-addr", Value: c.InspectAddr,
				Message: err.Error(),
				Hint:    "expected host:port, e.g. 127.0.0.1:9090",
			}
		}
	}
	return nil
}

func validPort(field string, port int) error {
	if port < 0 || port > 65535 {
		return &ncerr.ConfigError{
			Field: field, Value: port,
			Message: "port out of range 0-65535",
		}
	}
	return nil
}
