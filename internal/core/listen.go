package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"arrayd/config"
	"arrayd/internal/capability"
	"arrayd/internal/inspect"
	"arrayd/internal/metrics"
	"arrayd/internal/notify"
	"arrayd/internal/store"
	"arrayd/util"
)

// Endpoint names used by ListenMode.
const (
	EndpointData = "data"
	EndpointCode = "code"
)

// ListenMode runs the array listener with its optional inspection
// server and Redis event publisher.
type ListenMode struct {
	Config *config.Config
	Logger *util.Logger

	// Store receives arrays; a fresh one is used when nil.
	Store *store.Store

	// Stdout receives the bound-port announcement (os.Stdout when nil).
	Stdout io.Writer

	// Ready, if set, is called once the listener is serving.
	Ready func(*Listener)
}

func (m *ListenMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run serves until ctx is cancelled or a fatal transport error occurs.
func (m *ListenMode) Run(ctx context.Context) error {
	cfg := m.Config
	st := m.Store
	if st == nil {
		st = store.New()
	}

	collector := metrics.New()
	collector.TrackGauge("arrays_stored", "Arrays currently held in the store.", func() float64 {
		return float64(st.Len())
	})

	hub := notify.NewHub()
	defer hub.Close()
	st.Observe(hub.Observer())

	// ── endpoints ────────────────────────────────────────────────────
	reg := NewRegistry()
	if err := reg.Register(EndpointSpec{Name: EndpointData, Kind: KindArray, Host: cfg.Host, Port: cfg.DataPort},
		&capability.StoreArray{Store: st}); err != nil {
		return err
	}

	var code capability.Capability = capability.Disabled{}
	exec := &capability.Exec{Names: st.Names}
	if cfg.AllowExec {
		code = capability.NewLimited(exec, cfg.ExecRate, cfg.ExecBurst)
		m.Logger.Warn("code execution is enabled; any peer that can reach the code port can run commands")
	}
	if err := reg.Register(EndpointSpec{Name: EndpointCode, Kind: KindCode, Host: cfg.Host, Port: cfg.CodePort}, code); err != nil {
		return err
	}

	l := NewListener(reg, Options{
		PollInterval:   cfg.PollInterval,
		MaxMessageSize: cfg.MaxMessageSize,
		Logger:         m.Logger,
		Metrics:        collector,
	})

	// ── optional surfaces ────────────────────────────────────────────
	if cfg.InspectAddr != "" {
		srv := inspect.New(inspect.Options{
			Addr:        cfg.InspectAddr,
			Store:       st,
			Hub:         hub,
			Metrics:     collector,
			State:       func() string { return l.State().String() },
			EventBuffer: cfg.EventBuffer,
			Logger:      m.Logger,
		})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("inspect server on %s: %w", cfg.InspectAddr, err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), config.DefaultGracePeriod)
			defer cancel()
			srv.Shutdown(sctx) //nolint:errcheck
		}()
		exec.InspectURL = srv.URL()
		fmt.Fprintf(m.stdout(), "inspect %s\n", srv.URL())
	}

	if cfg.RedisAddr != "" {
		pub, err := notify.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel, m.Logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		pctx, cancel := context.WithCancel(context.Background())
		published := make(chan struct{})
		go func() {
			pub.Run(pctx, hub.Subscribe(cfg.EventBuffer))
			close(published)
		}()
		defer func() {
			cancel()
			<-published
		}()
		m.Logger.Verbose("publishing updates to redis %s channel %s", cfg.RedisAddr, pub.Channel())
	}

	// ── serve ────────────────────────────────────────────────────────
	if err := l.Start(); err != nil {
		return err
	}
	fmt.Fprintf(m.stdout(), "data port %d\ncode port %d\n", l.Port(EndpointData), l.Port(EndpointCode))
	m.Logger.Info("listening (data %d, code %d, exec %v)", l.Port(EndpointData), l.Port(EndpointCode), cfg.AllowExec)

	if m.Ready != nil {
		m.Ready(l)
	}

	go func() {
		select {
		case <-ctx.Done():
			start := time.Now()
			<-l.Stop()
			m.Logger.Verbose("stopped in %v", time.Since(start))
		case <-l.Done():
		}
	}()
	return l.Wait()
}
