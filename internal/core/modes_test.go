package core

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrayd/config"
	ncerr "arrayd/internal/errors"
	"arrayd/internal/retry"
	"arrayd/internal/store"
	"arrayd/util"
)

// runListenMode starts a ListenMode on loopback and returns its
// listener once it is serving.
func runListenMode(t *testing.T, allowExec bool, st *store.Store) *Listener {
	t.Helper()

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.AllowExec = allowExec

	ready := make(chan *Listener, 1)
	m := &ListenMode{
		Config: cfg,
		Logger: util.NewLogger(0),
		Store:  st,
		Stdout: io.Discard,
		Ready:  func(l *Listener) { ready <- l },
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("listen mode did not stop")
		}
	})

	select {
	case l := <-ready:
		return l
	case err := <-errc:
		t.Fatalf("listen mode exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen mode did not become ready")
	}
	return nil
}

func clientFor(l *Listener, endpoint, input string, out io.Writer) ClientOptions {
	return ClientOptions{
		Address:  util.FormatAddr("127.0.0.1", l.Port(endpoint)),
		Timeout:  time.Second,
		Attempts: 1,
		Stdin:    strings.NewReader(input),
		Stdout:   out,
		Logger:   util.NewLogger(0),
	}
}

func TestListenMode_SendStoresArray(t *testing.T) {
	st := store.New()
	l := runListenMode(t, false, st)

	var out bytes.Buffer
	send := &SendMode{ClientOptions: clientFor(l, EndpointData, "1,2\n3,4\n", &out), Name: "m"}
	require.NoError(t, send.Run(context.Background()))

	got, ok := st.Get("m")
	require.True(t, ok)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, got.Matrix())
	assert.Equal(t, "m 2x2 float64\n", out.String())
}

func TestListenMode_SendGeneratesName(t *testing.T) {
	st := store.New()
	l := runListenMode(t, false, st)

	send := &SendMode{ClientOptions: clientFor(l, EndpointData, "0.5\n", io.Discard), Float32: true}
	require.NoError(t, send.Run(context.Background()))

	names := st.Names()
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "arr_"))
}

func TestListenMode_ExecDisabledByDefault(t *testing.T) {
	l := runListenMode(t, false, nil)

	exec := &ExecMode{ClientOptions: clientFor(l, EndpointCode, "true", io.Discard)}
	err := exec.Run(context.Background())

	var re *ncerr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ncerr.ErrExecDisabled.Error(), re.Reason)
}

func TestListenMode_Exec(t *testing.T) {
	l := runListenMode(t, true, nil)

	var out bytes.Buffer
	ok := &ExecMode{ClientOptions: clientFor(l, EndpointCode, "exit 0", &out)}
	require.NoError(t, ok.Run(context.Background()))
	assert.Equal(t, "Success\n", out.String())

	bad := &ExecMode{ClientOptions: clientFor(l, EndpointCode, "echo nope; exit 3", io.Discard)}
	err := bad.Run(context.Background())
	var re *ncerr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Reason, "nope")
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestListenMode_SendSeveralFiles(t *testing.T) {
	st := store.New()
	l := runListenMode(t, false, st)

	dir := t.TempDir()
	var out bytes.Buffer
	send := &SendMode{
		ClientOptions: clientFor(l, EndpointData, "", &out),
		Inputs:        []string{writeCSV(t, dir, "a.csv", "1,2\n"), writeCSV(t, dir, "b.csv", "3\n4\n")},
	}
	require.NoError(t, send.Run(context.Background()))

	assert.Equal(t, []string{"a", "b"}, st.Names())
	assert.Equal(t, "a 1x2 float64\nb 2x1 float64\n", out.String())
}

func TestSendMode_BreakerFailsFast(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	dir := t.TempDir()
	first := writeCSV(t, dir, "first.csv", "1\n")
	second := writeCSV(t, dir, "second.csv", "2\n")

	send := &SendMode{
		ClientOptions: ClientOptions{
			Address:         addr,
			Timeout:         time.Second,
			Attempts:        1,
			BreakerFailures: 1,
			BreakerCooldown: time.Hour,
			Logger:          util.NewLogger(0),
		},
		Inputs: []string{first, second},
	}
	err = send.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrOpen, "the second file fails fast once the breaker opens")
	assert.Contains(t, err.Error(), first)
	assert.Contains(t, err.Error(), second)
}

func TestSendMode_BadInput(t *testing.T) {
	send := &SendMode{ClientOptions: ClientOptions{
		Address: "127.0.0.1:1",
		Stdin:   strings.NewReader("1,2\n3\n"),
		Logger:  util.NewLogger(0),
	}}
	err := send.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read matrix")
}

func TestBuild(t *testing.T) {
	logger := util.NewLogger(0)

	cfg := config.Default()
	m, err := Build(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &ListenMode{}, m)

	cfg.Mode = config.ModeSend
	cfg.DataPort = 4000
	cfg.ArrayName = "x"
	m, err = Build(cfg, logger)
	require.NoError(t, err)
	send, ok := m.(*SendMode)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:4000", send.Address)
	assert.Equal(t, "x", send.Name)

	cfg.Inputs = []string{"a.csv", "b.csv"}
	m, err = Build(cfg, logger)
	require.NoError(t, err)
	send = m.(*SendMode)
	assert.Equal(t, cfg.Inputs, send.Inputs)
	assert.Equal(t, config.DefaultBreakerFailures, send.BreakerFailures)
	assert.Equal(t, config.DefaultBreakerCooldown, send.BreakerCooldown)

	cfg.Mode = config.ModeExec
	cfg.CodePort = 4001
	m, err = Build(cfg, logger)
	require.NoError(t, err)
	exec, ok := m.(*ExecMode)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:4001", exec.Address)

	cfg.Mode = "scan"
	_, err = Build(cfg, logger)
	assert.Error(t, err)
}
