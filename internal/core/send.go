package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	ncerr "arrayd/internal/errors"
	"arrayd/internal/frame"
	"arrayd/internal/retry"
	"arrayd/internal/sink"
	"arrayd/util"
)

// ClientOptions are shared by SendMode and ExecMode.
type ClientOptions struct {
	Address  string
	Timeout  time.Duration
	Attempts int

	// BreakerFailures consecutive transport failures fail later
	// requests fast for BreakerCooldown.  0 disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration

	// Input is a file path; "-" or "" reads Stdin.
	Input string
	Stdin io.Reader

	// Stdout receives the result line (os.Stdout when nil).
	Stdout io.Writer
	Logger *util.Logger
}

func (o *ClientOptions) open(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		if o.Stdin != nil {
			return io.NopCloser(o.Stdin), nil
		}
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func (o *ClientOptions) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

func (o *ClientOptions) logger() *util.Logger {
	if o.Logger == nil {
		o.Logger = util.NewLogger(0)
	}
	return o.Logger
}

func (o *ClientOptions) sink() *sink.Sink {
	b := retry.DefaultBackoff()
	if o.Attempts > 0 {
		b.MaxAttempts = o.Attempts
	}
	opts := sink.Options{
		Timeout: o.Timeout,
		Backoff: b,
		Logger:  o.logger(),
	}
	if o.BreakerFailures > 0 {
		opts.Breaker = sink.NewBreaker(o.BreakerFailures, o.BreakerCooldown)
	}
	return sink.New(o.Address, opts)
}

// SendMode reads CSV matrices and stores them on a listener.
type SendMode struct {
	ClientOptions
	// Inputs, when set, replaces Input: each file becomes one array
	// named after the file.
	Inputs  []string
	Name    string // empty = generated
	Float32 bool
}

// Run sends every input over one connection and reports each stored
// name.  A failed input does not stop the rest; the errors are joined.
func (m *SendMode) Run(ctx context.Context) error {
	inputs := m.Inputs
	if len(inputs) == 0 {
		inputs = []string{m.Input}
	}

	s := m.sink()
	defer s.Close()

	var errs []error
	for _, path := range inputs {
		name := m.Name
		if name == "" {
			name = nameFor(path, len(inputs) > 1)
		}
		if err := m.send(ctx, s, path, name); err != nil {
			if len(inputs) > 1 {
				err = fmt.Errorf("%s: %w", path, err)
				m.logger().Warn("%v", err)
			}
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return ncerr.Join(errs...)
}

func (m *SendMode) send(ctx context.Context, s *sink.Sink, path, name string) error {
	in, err := m.open(path)
	if err != nil {
		return err
	}
	dtype := frame.Float64
	if m.Float32 {
		dtype = frame.Float32
	}
	arr, err := frame.ReadCSV(in, dtype)
	in.Close()
	if err != nil {
		return fmt.Errorf("read matrix: %w", err)
	}

	if err := s.SendArray(ctx, name, arr); err != nil {
		return err
	}
	fmt.Fprintf(m.stdout(), "%s %dx%d %s\n", name, arr.Rows, arr.Cols, arr.DType)
	return nil
}

// nameFor names the array from path when several files are sent, and
// generates a name otherwise.
func nameFor(path string, fromFile bool) string {
	if !fromFile || path == "" || path == "-" {
		return sink.GenerateName()
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExecMode sends a block of code to a listener's code endpoint.
type ExecMode struct {
	ClientOptions
}

// Run sends the input as one code request.
func (m *ExecMode) Run(ctx context.Context) error {
	in, err := m.open(m.Input)
	if err != nil {
		return err
	}
	code, err := io.ReadAll(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}

	s := m.sink()
	defer s.Close()
	if err := s.SendCode(ctx, code); err != nil {
		return err
	}
	fmt.Fprintln(m.stdout(), frame.SuccessText)
	return nil
}
