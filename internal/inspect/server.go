// Package inspect serves a read-only HTTP view of a running listener:
// health, the stored arrays, Prometheus metrics and a websocket stream
// of update events.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arrayd/internal/frame"
	"arrayd/internal/metrics"
	"arrayd/internal/notify"
	"arrayd/internal/store"
	"arrayd/util"
)

const writeWait = 5 * time.Second

// Options wire the server to the listener's state.
type Options struct {
	Addr        string
	Store       *store.Store
	Hub         *notify.Hub        // nil disables /events
	Metrics     *metrics.Collector // nil disables /metrics
	State       func() string      // reported by /healthz
	EventBuffer int
	Logger      *util.Logger
}

// Server is the inspection HTTP server.
type Server struct {
	opts     Options
	logger   *util.Logger
	upgrader websocket.Upgrader
	srv      *http.Server

	mu   sync.Mutex
	ln   net.Listener
	done chan struct{}
}

// New builds a server; call Start to begin serving.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	if opts.EventBuffer < 1 {
		opts.EventBuffer = 64
	}
	if opts.State == nil {
		opts.State = func() string { return "running" }
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		done: make(chan struct{}),
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimd.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Get("/arrays", s.listArrays)
	r.Get("/arrays/{name}", s.getArray)
	if m := s.opts.Metrics; m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}
	if s.opts.Hub != nil {
		r.Get("/events", s.events)
	}
	return r
}

// Start binds Options.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Verbose("inspect server on http://%s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("inspect server: %v", err)
		}
	}()
	return nil
}

// URL returns the base URL once started.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Shutdown closes event streams and drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

// ── Handlers ─────────────────────────────────────────────────────────

type arraySummary struct {
	Name  string `json:"name"`
	Rows  uint32 `json:"rows"`
	Cols  uint32 `json:"cols"`
	DType string `json:"dtype"`
}

type arrayDetail struct {
	arraySummary
	Data [][]jsonFloat `json:"data"`
}

// jsonFloat encodes non-finite values as strings, which plain JSON
// numbers cannot carry.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte(strconv.Quote(strconv.FormatFloat(v, 'g', -1, 64))), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func summarize(name string, arr frame.Array) arraySummary {
	return arraySummary{Name: name, Rows: arr.Rows, Cols: arr.Cols, DType: arr.DType.String()}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  s.opts.State(),
		"arrays": s.opts.Store.Len(),
	})
}

func (s *Server) listArrays(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Store.Snapshot()
	out := make([]arraySummary, 0, len(snap))
	for _, name := range s.opts.Store.Names() {
		if arr, ok := snap[name]; ok {
			out = append(out, summarize(name, arr))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getArray(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	arr, ok := s.opts.Store.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no array named " + strconv.Quote(name)})
		return
	}

	rows := make([][]jsonFloat, arr.Rows)
	for i := range rows {
		row := make([]jsonFloat, arr.Cols)
		for j := range row {
			row[j] = jsonFloat(arr.At(i, j))
		}
		rows[i] = row
	}
	writeJSON(w, http.StatusOK, arrayDetail{arraySummary: summarize(name, arr), Data: rows})
}

// events streams update events to a websocket client until either
// side goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.opts.Hub.Subscribe(s.opts.EventBuffer)
	defer sub.Close()

	// Reads only detect the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("events: %v", err)
				return
			}
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
