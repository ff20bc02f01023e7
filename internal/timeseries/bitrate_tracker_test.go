package timeseries

import (
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// =============================================================================
// Table-Driven Tests: AddBytes
// =============================================================================

func TestBitrateTracker_AddBytes(t *testing.T) {
	tests := []struct {
		name     string
		adds     []int64
		expected int64
	}{
		{"single add", []int64{100}, 100},
		{"multiple adds", []int64{100, 200, 300}, 600},
		{"zero ignored", []int64{100, 0, 50}, 150},
		{"negative ignored", []int64{100, -50}, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewBitrateTrackerWithClock(newFakeClock())
			for _, n := range tc.adds {
				tracker.AddBytes(n)
			}
			if got := tracker.GetStats().TotalBytes; got != tc.expected {
				t.Errorf("TotalBytes = %d, want %d", got, tc.expected)
			}
		})
	}
}

// =============================================================================
// Table-Driven Tests: Rolling averages
// =============================================================================

func TestBitrateTracker_SteadyRate(t *testing.T) {
	clock := newFakeClock()
	tracker := NewBitrateTrackerWithClock(clock)

	// 1000 bytes/sec for 30 seconds, sampled once per second.
	for i := 0; i < 30; i++ {
		tracker.AddBytes(1000)
		clock.advance(time.Second)
		tracker.RecordSample()
	}

	stats := tracker.GetStats()
	if !approxEqual(stats.Avg1s, 1000, 50) {
		t.Errorf("Avg1s = %.1f, want ~1000", stats.Avg1s)
	}
	if !approxEqual(stats.Avg10s, 1000, 50) {
		t.Errorf("Avg10s = %.1f, want ~1000", stats.Avg10s)
	}
	if !approxEqual(stats.AvgOverall, 1000, 50) {
		t.Errorf("AvgOverall = %.1f, want ~1000", stats.AvgOverall)
	}
}

func TestBitrateTracker_BurstShowsInShortWindowOnly(t *testing.T) {
	clock := newFakeClock()
	tracker := NewBitrateTrackerWithClock(clock)

	// 60 seconds idle.
	for i := 0; i < 60; i++ {
		clock.advance(time.Second)
		tracker.RecordSample()
	}
	// Then a one-second 100KB burst.
	tracker.AddBytes(100_000)
	clock.advance(time.Second)
	tracker.RecordSample()

	stats := tracker.GetStats()
	if !approxEqual(stats.Avg1s, 100_000, 5000) {
		t.Errorf("Avg1s = %.1f, want ~100000", stats.Avg1s)
	}
	// Spread over 60s the burst averages ~1.6KB/s.
	if stats.Avg60s > 3000 {
		t.Errorf("Avg60s = %.1f, want well under the burst rate", stats.Avg60s)
	}
}

func TestBitrateTracker_NoSamplesReturnsZero(t *testing.T) {
	tracker := NewBitrateTrackerWithClock(newFakeClock())
	stats := tracker.GetStats()
	if stats.Avg1s != 0 || stats.Avg10s != 0 || stats.Avg60s != 0 || stats.AvgOverall != 0 {
		t.Errorf("fresh tracker reported nonzero rates: %+v", stats)
	}
}

func TestBitrateTracker_RingBufferWrap(t *testing.T) {
	clock := newFakeClock()
	tracker := NewBitrateTrackerWithClock(clock)

	// More samples than the ring holds.
	for i := 0; i < ringBufferSize+50; i++ {
		tracker.AddBytes(500)
		clock.advance(time.Second)
		tracker.RecordSample()
	}

	if got := tracker.SampleCount(); got != ringBufferSize {
		t.Errorf("SampleCount = %d, want %d", got, ringBufferSize)
	}
	// Averages still computable after the wrap.
	stats := tracker.GetStats()
	if !approxEqual(stats.Avg10s, 500, 50) {
		t.Errorf("Avg10s = %.1f after wrap, want ~500", stats.Avg10s)
	}
}

// =============================================================================
// Table-Driven Tests: Kbps / Reset
// =============================================================================

func TestKbps(t *testing.T) {
	tests := []struct {
		bytesPerSec float64
		expected    float64
	}{
		{0, 0},
		{125, 1},        // 125 B/s = 1 kbps
		{125_000, 1000}, // 125 KB/s = 1 Mbps
	}
	for _, tc := range tests {
		if got := Kbps(tc.bytesPerSec); !approxEqual(got, tc.expected, 0.001) {
			t.Errorf("Kbps(%v) = %v, want %v", tc.bytesPerSec, got, tc.expected)
		}
	}
}

func TestBitrateTracker_Reset(t *testing.T) {
	clock := newFakeClock()
	tracker := NewBitrateTrackerWithClock(clock)

	tracker.AddBytes(5000)
	clock.advance(time.Second)
	tracker.RecordSample()

	tracker.Reset()

	stats := tracker.GetStats()
	if stats.TotalBytes != 0 {
		t.Errorf("TotalBytes = %d after Reset, want 0", stats.TotalBytes)
	}
	if tracker.SampleCount() != 1 {
		t.Errorf("SampleCount = %d after Reset, want 1 (baseline)", tracker.SampleCount())
	}

	// Still usable after reset.
	tracker.AddBytes(2000)
	clock.advance(time.Second)
	tracker.RecordSample()
	if got := tracker.GetStats().Avg1s; !approxEqual(got, 2000, 100) {
		t.Errorf("Avg1s = %.1f after Reset+add, want ~2000", got)
	}
}

func TestBitrateTracker_ConcurrentAddBytes(t *testing.T) {
	tracker := NewBitrateTracker()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tracker.AddBytes(1)
			}
		}()
	}
	wg.Wait()

	if got := tracker.GetStats().TotalBytes; got != 8000 {
		t.Errorf("TotalBytes = %d, want 8000", got)
	}
}
