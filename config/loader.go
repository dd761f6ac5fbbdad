package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables, including a .env file  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the ARRAYD_ prefix.  Boolean values
// accept "1", "true", "yes" and "0", "false", "no" (case-insensitive).  Durations use Go
// syntax ("20ms", "5s").

// LoadDotEnv loads path (".env" when empty) into the process
// environment.  Variables already set win.  A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.
func LoadFromEnv(cfg *Config) {
	// Listener
	if v := os.Getenv("ARRAYD_HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("ARRAYD_DATA_PORT"); ok {
		cfg.DataPort = v
	}
	if v, ok := envInt("ARRAYD_CODE_PORT"); ok {
		cfg.CodePort = v
	}
	if v, ok := envBool("ARRAYD_ALLOW_EXEC"); ok {
		cfg.AllowExec = v
	}
	if v, ok := envDuration("ARRAYD_POLL_INTERVAL"); ok {
		cfg.PollInterval = v
	}
	if v, ok := envInt("ARRAYD_MAX_MESSAGE_SIZE"); ok {
		cfg.MaxMessageSize = v
	}
	if v, ok := envFloat("ARRAYD_EXEC_RATE"); ok {
		cfg.ExecRate = v
	}
	if v, ok := envInt("ARRAYD_EXEC_BURST"); ok {
		cfg.ExecBurst = v
	}

	// Client
	if v := os.Getenv("ARRAYD_SERVER"); v != "" {
		cfg.Server = v
	}
	if v, ok := envDuration("ARRAYD_CONNECT_TIMEOUT"); ok {
		cfg.ConnectTimeout = v
	}
	if v, ok := envInt("ARRAYD_CONNECT_ATTEMPTS"); ok {
		cfg.ConnectAttempts = v
	}
	if v, ok := envInt("ARRAYD_BREAKER_FAILURES"); ok {
		cfg.BreakerFailures = v
	}
	if v, ok := envDuration("ARRAYD_BREAKER_COOLDOWN"); ok {
		cfg.BreakerCooldown = v
	}

	// Inspection / events
	if v := os.Getenv("ARRAYD_INSPECT_ADDR"); v != "" {
		cfg.InspectAddr = v
	}
	if v := os.Getenv("ARRAYD_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("ARRAYD_REDIS_CHANNEL"); v != "" {
		cfg.RedisChannel = v
	}

	// Output
	if v, ok := envInt("ARRAYD_VERBOSE"); ok {
		cfg.Verbose = v
	}
	if v := os.Getenv("ARRAYD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("ARRAYD_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// envBool accepts 1/true/yes and 0/false/no; anything else is ignored.
func envBool(key string) (bool, bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}
