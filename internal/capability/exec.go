package capability

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	ncerr "arrayd/internal/errors"
	"arrayd/internal/session"
)

// DefaultOutputTail is how much trailing output of a failed script is
// returned as the failure reason.
const DefaultOutputTail = 512

// Exec runs each request as a script through the system shell.
type Exec struct {
	// Names lists the arrays currently stored; exported to the script
	// as ARRAYD_ARRAYS.  Optional.
	Names func() []string

	// InspectURL is exported as ARRAYD_INSPECT_URL when non-empty.
	InspectURL string

	// OutputTail bounds the failure reason (0 = DefaultOutputTail).
	OutputTail int
}

// Handle runs msg with the shell and waits for it to exit.
func (e *Exec) Handle(ctx context.Context, sess *session.Session, msg []byte) error {
	code := string(msg)
	if strings.TrimSpace(code) == "" {
		return nil
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", code)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", code)
	}
	cmd.Env = e.environ()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if sess != nil {
		sess.Logger.Debug("exec: %d bytes of code", len(msg))
	}

	if err := cmd.Run(); err != nil {
		if tail := e.tail(out.Bytes()); tail != "" {
			return fmt.Errorf("%w: %s", err, tail)
		}
		return err
	}
	if sess != nil && out.Len() > 0 {
		sess.Logger.Verbose("exec output: %s", e.tail(out.Bytes()))
	}
	return nil
}

func (e *Exec) environ() []string {
	env := os.Environ()
	if e.Names != nil {
		env = append(env, "ARRAYD_ARRAYS="+strings.Join(e.Names(), ","))
	}
	if e.InspectURL != "" {
		env = append(env, "ARRAYD_INSPECT_URL="+e.InspectURL)
	}
	return env
}

func (e *Exec) tail(out []byte) string {
	n := e.OutputTail
	if n <= 0 {
		n = DefaultOutputTail
	}
	out = bytes.TrimSpace(out)
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return string(out)
}

// Disabled answers every request with ErrExecDisabled.  It stands in
// for Exec when code execution has not been allowed.
type Disabled struct{}

// Handle always fails.
func (Disabled) Handle(context.Context, *session.Session, []byte) error {
	return ncerr.ErrExecDisabled
}
