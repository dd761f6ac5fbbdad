package metrics

import (
	"encoding/json"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestCollector_Peers(t *testing.T) {
	c := New()

	c.PeerOpened()
	c.PeerOpened()
	if c.ActivePeers() != 2 {
		t.Errorf("active = %d, want 2", c.ActivePeers())
	}
	if c.TotalPeers() != 2 {
		t.Errorf("total = %d, want 2", c.TotalPeers())
	}

	c.PeerClosed()
	if c.ActivePeers() != 1 {
		t.Errorf("active = %d, want 1", c.ActivePeers())
	}
	if c.TotalPeers() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalPeers())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived("data", 1024)
	c.BytesSent("data", 8)
	c.BytesReceived("code", 100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 8 {
		t.Errorf("bytes out = %d, want 8", c.TotalBytesOut())
	}
}

func TestCollector_Requests(t *testing.T) {
	c := New()

	c.RequestHandled("data", true, time.Millisecond)
	c.RequestHandled("data", false, time.Millisecond)
	c.RequestHandled("data", true, time.Millisecond)

	ok, failed := c.Requests("data")
	if ok != 2 || failed != 1 {
		t.Errorf("requests = (%d, %d), want (2, 1)", ok, failed)
	}
	if ok, failed := c.Requests("code"); ok != 0 || failed != 0 {
		t.Errorf("unknown endpoint = (%d, %d), want zeros", ok, failed)
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.PeerOpened()
	c.BytesReceived("data", 100)
	c.BytesSent("code", 50)
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.PeersActive != 1 {
		t.Errorf("snap active = %d", snap.PeersActive)
	}
	if snap.BytesIn != 100 {
		t.Errorf("snap bytes in = %d", snap.BytesIn)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
	if len(snap.Endpoints) != 2 || snap.Endpoints[0].Name != "code" {
		t.Errorf("snap endpoints = %+v", snap.Endpoints)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.PeerOpened()
	c.BytesSent("data", 42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.PeersActive != 1 {
		t.Errorf("JSON active = %d", snap.PeersActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func findFamily(t *testing.T, c *Collector, name string) *dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestCollector_Prometheus(t *testing.T) {
	c := New()
	c.RequestHandled("data", true, 2*time.Millisecond)
	c.RequestHandled("data", false, time.Millisecond)
	c.PeerOpened()

	req := findFamily(t, c, "arrayd_requests_total")
	if req == nil {
		t.Fatal("arrayd_requests_total not exported")
	}
	if n := len(req.GetMetric()); n != 2 {
		t.Errorf("request series = %d, want 2", n)
	}

	dur := findFamily(t, c, "arrayd_request_duration_seconds")
	if dur == nil {
		t.Fatal("duration histogram not exported")
	}
	if got := dur.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("histogram samples = %d, want 2", got)
	}

	peers := findFamily(t, c, "arrayd_peers_active")
	if peers == nil || peers.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Error("arrayd_peers_active should be 1")
	}
}

func TestCollector_TrackGauge(t *testing.T) {
	c := New()
	c.TrackGauge("arrays_stored", "Arrays in the store.", func() float64 { return 3 })

	f := findFamily(t, c, "arrayd_arrays_stored")
	if f == nil {
		t.Fatal("gauge not exported")
	}
	if v := f.GetMetric()[0].GetGauge().GetValue(); v != 3 {
		t.Errorf("gauge = %v, want 3", v)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.PeerOpened()
	c.PeerClosed()
	c.BytesReceived("data", 100)
	c.BytesSent("data", 100)
	c.RequestHandled("data", true, time.Second)
	c.RecordError("test")
	c.TrackGauge("x", "x", func() float64 { return 0 })

	if c.ActivePeers() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesIn() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.Registry() != nil {
		t.Error("nil collector has no registry")
	}

	snap := c.Snapshot()
	if snap.PeersActive != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
