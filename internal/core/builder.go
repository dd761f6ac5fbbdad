package core

import (
	"fmt"

	"arrayd/config"
	"arrayd/util"
)

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	switch cfg.Mode {
	case config.ModeListen, "":
		return &ListenMode{Config: cfg, Logger: logger}, nil
	case config.ModeSend:
		return &SendMode{
			ClientOptions: clientOptions(cfg, cfg.DataAddr(), logger),
			Inputs:        cfg.Inputs,
			Name:          cfg.ArrayName,
			Float32:       cfg.Float32,
		}, nil
	case config.ModeExec:
		return &ExecMode{ClientOptions: clientOptions(cfg, cfg.CodeAddr(), logger)}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func clientOptions(cfg *config.Config, addr string, logger *util.Logger) ClientOptions {
	return ClientOptions{
		Address:  addr,
		Timeout:  cfg.ConnectTimeout,
		Attempts: cfg.ConnectAttempts,

		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,

		Input:  cfg.Input,
		Logger: logger,
	}
}
