package metrics

import (
	"testing"
	"time"
)

// BenchmarkCollector_PeerOpened measures the overhead of recording a
// peer connect (atomic operations).
func BenchmarkCollector_PeerOpened(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.PeerOpened()
	}
}

// BenchmarkCollector_RequestHandled measures the per-request cost on
// the dispatch path.
func BenchmarkCollector_RequestHandled(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RequestHandled("data", true, time.Millisecond)
	}
}

// BenchmarkCollector_Snapshot measures the cost of taking a snapshot.
func BenchmarkCollector_Snapshot(b *testing.B) {
	c := New()
	c.PeerOpened()
	c.BytesSent("data", 1024)
	c.RecordError("test")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Snapshot()
	}
}

// BenchmarkNilCollector verifies nil-safe no-ops have zero overhead.
func BenchmarkNilCollector(b *testing.B) {
	var c *Collector
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.PeerOpened()
		c.BytesSent("data", 32768)
		c.RecordError("test")
	}
}
