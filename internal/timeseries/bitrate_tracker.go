// Package timeseries provides time-windowed throughput tracking for the
// decode pipeline.
//
// The stats engine's one-second window answers "what is the bitrate right
// now"; the tracker answers "what has it been lately" with rolling averages
// over longer windows, which is what the dashboard and capacity planning
// actually want to see.
//
// Thread-safe: AddBytes() uses atomic int64, GetStats() acquires read lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (2 minutes at
	// 1 sample/sec).
	ringBufferSize = 120

	// Window durations for rolling averages.
	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of cumulative bytes.
type sample struct {
	timestamp time.Time
	bytes     int64
}

// BitrateTracker tracks cumulative accepted payload bytes and computes
// rolling averages over several windows.
//
// Usage:
//
//	tracker := NewBitrateTracker()
//	tracker.AddBytes(int64(unit.Size()))  // per accepted frame, lock-free
//	tracker.RecordSample()                // periodic, e.g. every 1s
//	stats := tracker.GetStats()
type BitrateTracker struct {
	totalBytes atomic.Int64

	// Ring buffer of samples for rolling average calculation.
	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// BitrateStats contains computed rolling averages at a point in time.
type BitrateStats struct {
	// TotalBytes is the cumulative bytes accepted since start.
	TotalBytes int64

	// Rolling averages in bytes per second.
	Avg1s  float64
	Avg10s float64
	Avg60s float64

	// AvgOverall is the average throughput since tracking started.
	AvgOverall float64
}

// Kbps converts a bytes-per-second figure to kilobits per second.
func Kbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / 1000
}

// NewBitrateTracker creates a tracker with the real clock.
func NewBitrateTracker() *BitrateTracker {
	return NewBitrateTrackerWithClock(realClock{})
}

// NewBitrateTrackerWithClock creates a tracker with an injected clock.
func NewBitrateTrackerWithClock(clock Clock) *BitrateTracker {
	now := clock.Now()
	t := &BitrateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// AddBytes adds bytes to the cumulative total. Lock-free.
func (t *BitrateTracker) AddBytes(n int64) {
	if n > 0 {
		t.totalBytes.Add(n)
	}
}

// RecordSample records the current cumulative bytes with a timestamp.
// Call roughly once per second.
func (t *BitrateTracker) RecordSample() {
	now := t.clock.Now()
	currentBytes := t.totalBytes.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := sample{timestamp: now, bytes: currentBytes}
	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.writeIdx] = s
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// GetStats computes current throughput statistics. Always returns valid
// data, using whatever history is available.
func (t *BitrateTracker) GetStats() BitrateStats {
	now := t.clock.Now()
	currentBytes := t.totalBytes.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := BitrateStats{TotalBytes: currentBytes}

	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.AvgOverall = float64(currentBytes) / elapsed
	}

	stats.Avg1s = t.avgOverWindow(now, currentBytes, window1s)
	stats.Avg10s = t.avgOverWindow(now, currentBytes, window10s)
	stats.Avg60s = t.avgOverWindow(now, currentBytes, window60s)
	return stats
}

// avgOverWindow calculates average bytes/sec over the given window.
// Must be called with mu held (at least RLock).
func (t *BitrateTracker) avgOverWindow(now time.Time, currentBytes int64, window time.Duration) float64 {
	if len(t.samples) == 0 {
		return 0
	}

	targetTime := now.Add(-window)

	// The sample closest to (but not after) targetTime anchors the delta.
	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	transferred := currentBytes - best.bytes
	actualElapsed := now.Sub(best.timestamp).Seconds()
	if actualElapsed <= 0 {
		return 0
	}
	return float64(transferred) / actualElapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *BitrateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *BitrateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalBytes.Store(0)
	t.samples = t.samples[:0]
	t.samples = append(t.samples, sample{timestamp: now})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
func (t *BitrateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
