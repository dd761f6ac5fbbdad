// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a listener.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
//
// The Collector also implements prometheus.Collector and owns the
// registry served at /metrics.
package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arrayd"

// Request outcomes, used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector tracks runtime metrics for a listener.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	peersActive atomic.Int64
	peersTotal  atomic.Int64
	bytesIn     atomic.Int64
	bytesOut    atomic.Int64
	errorsTotal atomic.Int64

	mu           sync.RWMutex
	endpoints    map[string]*endpointStats
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string

	registry *prometheus.Registry
	duration *prometheus.HistogramVec
}

type endpointStats struct {
	successes atomic.Int64
	failures  atomic.Int64
	bytesIn   atomic.Int64
	bytesOut  atomic.Int64
}

var (
	descRequests = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "requests_total"),
		"Requests answered, by endpoint and outcome.",
		[]string{"endpoint", "outcome"}, nil)
	descBytes = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_total"),
		"Message bytes moved, by endpoint and direction.",
		[]string{"endpoint", "direction"}, nil)
	descPeersActive = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "peers_active"),
		"Currently connected peers.", nil, nil)
	descPeersTotal = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "peers_total"),
		"Peers accepted since start.", nil, nil)
	descErrors = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "errors_total"),
		"Errors recorded, including failed requests.", nil, nil)
)

// New creates a metrics collector with the start time set to now and
// registers it with a fresh registry.
func New() *Collector {
	c := &Collector{
		endpoints: make(map[string]*endpointStats),
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
	}
	factory := promauto.With(c.registry)
	c.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time spent handling a request, reply write included.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"endpoint"})
	c.registry.MustRegister(c)
	return c
}

// Registry returns the registry holding every listener metric.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// TrackGauge exports fn as a gauge named arrayd_<name>.
func (c *Collector) TrackGauge(name, help string, fn func() float64) {
	if c == nil {
		return
	}
	promauto.With(c.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

func (c *Collector) endpoint(name string) *endpointStats {
	c.mu.RLock()
	s, ok := c.endpoints[name]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.endpoints[name]; !ok {
		s = &endpointStats{}
		c.endpoints[name] = s
	}
	return s
}

// ── Peer metrics ─────────────────────────────────────────────────────

// PeerOpened increments both the active and total counters.
func (c *Collector) PeerOpened() {
	if c == nil {
		return
	}
	c.peersActive.Add(1)
	c.peersTotal.Add(1)
}

// PeerClosed decrements the active peer counter.
func (c *Collector) PeerClosed() {
	if c == nil {
		return
	}
	c.peersActive.Add(-1)
}

// ActivePeers returns the current number of connected peers.
func (c *Collector) ActivePeers() int64 {
	if c == nil {
		return 0
	}
	return c.peersActive.Load()
}

// TotalPeers returns the lifetime peer count.
func (c *Collector) TotalPeers() int64 {
	if c == nil {
		return 0
	}
	return c.peersTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n request bytes read on endpoint.
func (c *Collector) BytesReceived(endpoint string, n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
	c.endpoint(endpoint).bytesIn.Add(n)
}

// BytesSent records n reply bytes written on endpoint.
func (c *Collector) BytesSent(endpoint string, n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
	c.endpoint(endpoint).bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Request metrics ──────────────────────────────────────────────────

// RequestHandled records one answered request.
func (c *Collector) RequestHandled(endpoint string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	s := c.endpoint(endpoint)
	if ok {
		s.successes.Add(1)
	} else {
		s.failures.Add(1)
	}
	c.duration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Requests returns the success and failure counts for endpoint.
func (c *Collector) Requests(endpoint string) (successes, failures int64) {
	if c == nil {
		return 0, 0
	}
	c.mu.RLock()
	s, ok := c.endpoints[endpoint]
	c.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return s.successes.Load(), s.failures.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── prometheus.Collector ─────────────────────────────────────────────

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRequests
	ch <- descBytes
	ch <- descPeersActive
	ch <- descPeersTotal
	ch <- descErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(descPeersActive, prometheus.GaugeValue, float64(c.peersActive.Load()))
	ch <- prometheus.MustNewConstMetric(descPeersTotal, prometheus.CounterValue, float64(c.peersTotal.Load()))
	ch <- prometheus.MustNewConstMetric(descErrors, prometheus.CounterValue, float64(c.errorsTotal.Load()))

	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, s := range c.endpoints {
		ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(s.successes.Load()), name, OutcomeSuccess)
		ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(s.failures.Load()), name, OutcomeFailure)
		ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(s.bytesIn.Load()), name, "in")
		ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(s.bytesOut.Load()), name, "out")
	}
}

// ── Snapshot ─────────────────────────────────────────────────────────

// EndpointSnapshot is a point-in-time view of one endpoint.
type EndpointSnapshot struct {
	Name      string `json:"name"`
	Successes int64  `json:"successes"`
	Failures  int64  `json:"failures"`
	BytesIn   int64  `json:"bytes_in"`
	BytesOut  int64  `json:"bytes_out"`
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string             `json:"uptime"`
	PeersActive      int64              `json:"peers_active"`
	PeersTotal       int64              `json:"peers_total"`
	BytesIn          int64              `json:"bytes_in"`
	BytesOut         int64              `json:"bytes_out"`
	ErrorsTotal      int64              `json:"errors_total"`
	Endpoints        []EndpointSnapshot `json:"endpoints,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	LastErrorMessage string             `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:      time.Since(c.startTime).Truncate(time.Second).String(),
		PeersActive: c.peersActive.Load(),
		PeersTotal:  c.peersTotal.Load(),
		BytesIn:     c.bytesIn.Load(),
		BytesOut:    c.bytesOut.Load(),
		ErrorsTotal: c.errorsTotal.Load(),
	}
	for name, e := range c.endpoints {
		s.Endpoints = append(s.Endpoints, EndpointSnapshot{
			Name:      name,
			Successes: e.successes.Load(),
			Failures:  e.failures.Load(),
			BytesIn:   e.bytesIn.Load(),
			BytesOut:  e.bytesOut.Load(),
		})
	}
	sort.Slice(s.Endpoints, func(i, j int) bool { return s.Endpoints[i].Name < s.Endpoints[j].Name })
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
