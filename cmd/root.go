// Package cmd wires up the CLI and dispatches to the arrayd modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"arrayd/config"
	"arrayd/internal/core"
	"arrayd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X arrayd/cmd.version=2.0.0"
var version = "0.1.0" //nolint:gochecknoglobals

// rootOptions are the flags that are not part of config.Config.
type rootOptions struct {
	configPath string
	envFile    string
	quiet      bool
	dryRun     bool
	code       string
}

// Execute parses args and runs the selected arrayd mode.
func Execute(ctx context.Context, args []string) error {
	root, _ := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// newRootCommand builds the command tree around a single Config that
// the selected subcommand fills in.
func newRootCommand() (*cobra.Command, *config.Config) {
	cfg := config.Default()
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "arrayd",
		Short: "Receive named arrays and code over TCP",
		Long: `arrayd listens on two TCP endpoints.  Peers send length-prefixed
array frames to the data port, which are stored by name, and code to
the code port, which is executed when --allow-exec is set.  Every
request is answered with "Success" or a failure reason.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env)")
	pf.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	cfg.Verbose = config.DefaultVerbosity // CountVarP zeroes its target
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print errors")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: auto, console or json")
	pf.StringVar(&cfg.LogFile, "log-file", "", "Also write JSON logs to a rotating file")
	pf.BoolVar(&opts.dryRun, "dry-run", false, "Validate the configuration and exit")

	root.AddCommand(
		listenCommand(cfg, opts),
		sendCommand(cfg, opts),
		execCommand(cfg, opts),
		versionCommand(),
	)
	return root, cfg
}

func listenCommand(cfg *config.Config, opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "listen",
		Short: "Serve the data and code endpoints",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg.Mode = config.ModeListen
			return run(c, cfg, opts)
		},
	}
	fs := c.Flags()
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host for both endpoints")
	fs.IntVar(&cfg.DataPort, "data-port", 0, "Array endpoint port (0 = random)")
	fs.IntVar(&cfg.CodePort, "code-port", 0, "Code endpoint port (0 = random)")
	fs.BoolVar(&cfg.AllowExec, "allow-exec", false, "Execute code received on the code port")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "How often the loop checks for stop")
	fs.IntVar(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "Largest accepted message in bytes")
	fs.Float64Var(&cfg.ExecRate, "exec-rate", cfg.ExecRate, "Code requests per second (0 = unlimited)")
	fs.IntVar(&cfg.ExecBurst, "exec-burst", cfg.ExecBurst, "Code request burst")
	fs.StringVar(&cfg.InspectAddr, "inspect-addr", "", "Serve the HTTP inspection API on this address")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "Publish array updates to this Redis server")
	fs.StringVar(&cfg.RedisChannel, "redis-channel", cfg.RedisChannel, "Redis channel for array updates")
	fs.IntVar(&cfg.EventBuffer, "event-buffer", cfg.EventBuffer, "Per-subscriber event buffer")
	return c
}

func sendCommand(cfg *config.Config, opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "send [FILE...]",
		Short: "Send CSV matrices to a listener's data port",
		Example: `  arrayd send --data-port 5555 --name weights weights.csv
  arrayd send --data-port 5555 a.csv b.csv    # stored as "a" and "b"
  printf '1,2\n3,4\n' | arrayd send -s 10.0.0.7 --data-port 5555`,
		RunE: func(c *cobra.Command, args []string) error {
			cfg.Mode = config.ModeSend
			switch len(args) {
			case 0:
			case 1:
				cfg.Input = args[0]
			default:
				cfg.Inputs = args
			}
			return run(c, cfg, opts)
		},
	}
	fs := c.Flags()
	clientFlags(fs, cfg)
	fs.IntVar(&cfg.DataPort, "data-port", 0, "Listener's data port")
	fs.StringVarP(&cfg.ArrayName, "name", "n", "", "Array name (default generated)")
	fs.BoolVar(&cfg.Float32, "float32", false, "Encode values as float32")
	return c
}

func execCommand(cfg *config.Config, opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "exec [FILE]",
		Short: "Send code to a listener's code port",
		Example: `  arrayd exec --code-port 5556 -c 'echo $ARRAYD_ARRAYS'
  arrayd exec --code-port 5556 script.sh`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg.Mode = config.ModeExec
			if len(args) == 1 {
				if opts.code != "" {
					return fmt.Errorf("give either FILE or --code, not both")
				}
				cfg.Input = args[0]
			}
			return run(c, cfg, opts)
		},
	}
	fs := c.Flags()
	clientFlags(fs, cfg)
	fs.IntVar(&cfg.CodePort, "code-port", 0, "Listener's code port")
	fs.StringVarP(&opts.code, "code", "c", "", "Code to send instead of FILE")
	return c
}

func clientFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.Server, "server", "s", cfg.Server, "Listener host")
	fs.DurationVar(&cfg.ConnectTimeout, "timeout", cfg.ConnectTimeout, "Dial and request timeout")
	fs.IntVar(&cfg.ConnectAttempts, "attempts", cfg.ConnectAttempts, "Connection attempts")
	fs.IntVar(&cfg.BreakerFailures, "breaker-failures", cfg.BreakerFailures,
		"Transport failures before later requests fail fast (0 = never)")
	fs.DurationVar(&cfg.BreakerCooldown, "breaker-cooldown", cfg.BreakerCooldown,
		"How long requests fail fast once the breaker opens")
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "arrayd %s\n", version)
		},
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// run resolves the configuration and runs the mode.
func run(c *cobra.Command, cfg *config.Config, opts *rootOptions) error {
	if err := resolve(c.Flags(), cfg, opts); err != nil {
		return err
	}
	if opts.quiet {
		cfg.Verbose = 0
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.dryRun {
		fmt.Fprintf(c.OutOrStdout(), "%s: configuration ok\n", cfg.Mode)
		return nil
	}

	logger := util.NewLoggerWithOptions(util.LoggerOptions{
		Verbosity: cfg.Verbose,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
	})
	defer logger.Sync() //nolint:errcheck

	m, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	setOutput(m, c.OutOrStdout(), c.InOrStdin(), opts.code)
	return m.Run(c.Context())
}

// resolve layers the configuration: defaults, then the config file,
// then the environment, then any flag given on the command line.
func resolve(fs *flag.FlagSet, cfg *config.Config, opts *rootOptions) error {
	changed := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	if opts.configPath != "" {
		if err := config.LoadFile(opts.configPath, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

func setOutput(m core.Mode, stdout io.Writer, stdin io.Reader, code string) {
	switch m := m.(type) {
	case *core.ListenMode:
		m.Stdout = stdout
	case *core.SendMode:
		m.Stdout, m.Stdin = stdout, stdin
	case *core.ExecMode:
		m.Stdout, m.Stdin = stdout, stdin
		if code != "" {
			m.Input = "-"
			m.Stdin = strings.NewReader(code)
		}
	}
}
