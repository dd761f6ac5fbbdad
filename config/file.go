package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML layout.  Pointer fields distinguish an
// absent key from a zero value so only keys present in the file
// override what came before.
type fileConfig struct {
	Listener struct {
		Host           *string  `toml:"host"`
		DataPort       *int     `toml:"data_port"`
		CodePort       *int     `toml:"code_port"`
		AllowExec      *bool    `toml:"allow_exec"`
		PollInterval   *string  `toml:"poll_interval"`
		MaxMessageSize *int     `toml:"max_message_size"`
		ExecRate       *float64 `toml:"exec_rate"`
		ExecBurst      *int     `toml:"exec_burst"`
	} `toml:"listener"`

	Client struct {
		Server          *string `toml:"server"`
		ConnectTimeout  *string `toml:"connect_timeout"`
		ConnectAttempts *int    `toml:"connect_attempts"`
		BreakerFailures *int    `toml:"breaker_failures"`
		BreakerCooldown *string `toml:"breaker_cooldown"`
	} `toml:"client"`

	Inspect struct {
		Addr *string `toml:"addr"`
	} `toml:"inspect"`

	Notify struct {
		RedisAddr    *string `toml:"redis_addr"`
		RedisChannel *string `toml:"redis_channel"`
		EventBuffer  *int    `toml:"event_buffer"`
	} `toml:"notify"`

	Log struct {
		Verbose *int    `toml:"verbose"`
		Format  *string `toml:"format"`
		File    *string `toml:"file"`
	} `toml:"log"`
}

// LoadFile overlays the TOML file at path onto cfg.  Unknown keys are
// rejected so typos surface early.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var fc fileConfig
	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	l := fc.Listener
	set(&cfg.Host, l.Host)
	set(&cfg.DataPort, l.DataPort)
	set(&cfg.CodePort, l.CodePort)
	set(&cfg.AllowExec, l.AllowExec)
	if err := setDuration(&cfg.PollInterval, "listener.poll_interval", l.PollInterval); err != nil {
		return err
	}
	set(&cfg.MaxMessageSize, l.MaxMessageSize)
	set(&cfg.ExecRate, l.ExecRate)
	set(&cfg.ExecBurst, l.ExecBurst)

	c := fc.Client
	set(&cfg.Server, c.Server)
	if err := setDuration(&cfg.ConnectTimeout, "client.connect_timeout", c.ConnectTimeout); err != nil {
		return err
	}
	set(&cfg.ConnectAttempts, c.ConnectAttempts)
	set(&cfg.BreakerFailures, c.BreakerFailures)
	if err := setDuration(&cfg.BreakerCooldown, "client.breaker_cooldown", c.BreakerCooldown); err != nil {
		return err
	}

	set(&cfg.InspectAddr, fc.Inspect.Addr)
	set(&cfg.RedisAddr, fc.Notify.RedisAddr)
	set(&cfg.RedisChannel, fc.Notify.RedisChannel)
	set(&cfg.EventBuffer, fc.Notify.EventBuffer)

	set(&cfg.Verbose, fc.Log.Verbose)
	set(&cfg.LogFormat, fc.Log.Format)
	set(&cfg.LogFile, fc.Log.File)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key string, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
