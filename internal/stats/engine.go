// Package stats derives smoothed latency and throughput figures from raw
// pipeline events.
//
// Decode time is smoothed with an exponential moving average that weights
// keyframes far less than delta frames: keyframes are routinely 5-10x
// larger and slower to decode, and an unweighted average would make the
// reported latency misleadingly spiky on every GOP boundary. Percentiles
// come from a t-digest, which keeps memory constant regardless of how long
// the session runs.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-decode-pipeline/internal/timeseries"
)

const (
	// EMA weights for decode-time smoothing.
	emaAlphaKeyframe = 0.03
	emaAlphaDelta    = 0.1

	// Decode times above this are clock artifacts (suspend/resume, map
	// eviction races), not measurements, and are discarded.
	decodeTimeSaneBoundMs = 1000.0

	// Rolling window for fps and bitrate recomputation.
	windowInterval = time.Second

	// Host latency arrives in device units of 1/10 millisecond.
	hostLatencyUnitsPerMs = 10.0

	// digestCompression bounds the t-digest to ~100 centroids (~10KB).
	digestCompression = 100
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Stats is a read-only snapshot of the engine.
type Stats struct {
	TotalFrames   int64
	DecodedFrames int64
	DroppedFrames int64
	TotalBytes    int64

	ReceivedFPS    float64
	RenderedFPS    float64
	BitrateKbps    float64
	Bitrate60sKbps float64

	AvgDecodeMs float64 // keyframe-weighted EMA
	MaxDecodeMs float64 // running maximum
	DecodeP50Ms float64
	DecodeP95Ms float64
	DecodeP99Ms float64

	AvgHostLatencyMs float64

	TimestampMapSize int
}

// Engine accumulates pipeline statistics. All mutation happens under one
// lock; readers get value snapshots.
type Engine struct {
	mu    sync.Mutex
	clock Clock

	totalFrames   int64
	decodedFrames int64
	droppedFrames int64
	totalBytes    int64

	windowStart   time.Time
	windowFrames  int64
	windowBytes   int64
	windowDecoded int64
	receivedFPS   float64
	renderedFPS   float64
	bitrateKbps   float64

	avgDecodeMs   float64
	maxDecodeMs   float64
	emaPrimed     bool
	decodeSamples int64
	digest        *tdigest.TDigest

	hostLatencySumMs float64
	hostLatencyCount int64

	bitrate *timeseries.BitrateTracker

	ts *timestampMap
}

// NewEngine creates an engine whose timestamp map holds at most tsCapacity
// in-flight frames.
func NewEngine(tsCapacity int) *Engine {
	return NewEngineWithClock(tsCapacity, realClock{})
}

// NewEngineWithClock creates an engine with an injected clock for testing.
func NewEngineWithClock(tsCapacity int, clock Clock) *Engine {
	return &Engine{
		clock:   clock,
		digest:  tdigest.NewWithCompression(digestCompression),
		bitrate: timeseries.NewBitrateTrackerWithClock(clock),
		ts:      newTimestampMap(tsCapacity),
	}
}

// RecordSubmit accounts for one frame accepted into the pipeline: counters,
// the enqueue timestamp used later for decode-time measurement, and the
// host-reported processing latency.
func (e *Engine) RecordSubmit(pts int64, sizeBytes int, keyframe bool, hostLatency uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.totalFrames++
	e.totalBytes += int64(sizeBytes)
	e.windowFrames++
	e.windowBytes += int64(sizeBytes)
	e.bitrate.AddBytes(int64(sizeBytes))

	e.ts.put(pts, tsEntry{enqueuedAt: now, keyframe: keyframe})

	if hostLatency > 0 {
		e.hostLatencySumMs += float64(hostLatency) / hostLatencyUnitsPerMs
		e.hostLatencyCount++
	}

	e.rotateWindowLocked(now)
}

// RecordDecoded accounts for one decoded-and-presented frame. Returns the
// measured decode time and whether a timestamp match was found.
func (e *Engine) RecordDecoded(pts int64) (decodeMs float64, matched bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.decodedFrames++
	e.windowDecoded++
	e.rotateWindowLocked(now)

	entry, ok := e.ts.take(pts)
	if !ok {
		return 0, false
	}

	decodeMs = float64(now.Sub(entry.enqueuedAt)) / float64(time.Millisecond)
	if decodeMs < 0 || decodeMs >= decodeTimeSaneBoundMs {
		return decodeMs, false
	}

	alpha := emaAlphaDelta
	if entry.keyframe {
		alpha = emaAlphaKeyframe
	}
	if !e.emaPrimed {
		e.avgDecodeMs = decodeMs
		e.emaPrimed = true
	} else {
		e.avgDecodeMs = alpha*decodeMs + (1-alpha)*e.avgDecodeMs
	}
	if decodeMs > e.maxDecodeMs {
		e.maxDecodeMs = decodeMs
	}
	e.digest.Add(decodeMs, 1)
	e.decodeSamples++
	return decodeMs, true
}

// RecordDropped accounts for exactly one dropped frame. No other counter
// changes.
func (e *Engine) RecordDropped() {
	e.mu.Lock()
	e.droppedFrames++
	e.mu.Unlock()
}

// rotateWindowLocked recomputes the rate figures once per window.
func (e *Engine) rotateWindowLocked(now time.Time) {
	if e.windowStart.IsZero() {
		e.windowStart = now
		return
	}
	elapsed := now.Sub(e.windowStart)
	if elapsed < windowInterval {
		return
	}
	secs := elapsed.Seconds()
	e.receivedFPS = float64(e.windowFrames) / secs
	e.renderedFPS = float64(e.windowDecoded) / secs
	e.bitrateKbps = float64(e.windowBytes) * 8 / secs / 1000
	e.bitrate.RecordSample()

	e.windowStart = now
	e.windowFrames = 0
	e.windowBytes = 0
	e.windowDecoded = 0
}

// Snapshot returns a copy of the current statistics.
func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalFrames:      e.totalFrames,
		DecodedFrames:    e.decodedFrames,
		DroppedFrames:    e.droppedFrames,
		TotalBytes:       e.totalBytes,
		ReceivedFPS:      e.receivedFPS,
		RenderedFPS:      e.renderedFPS,
		BitrateKbps:      e.bitrateKbps,
		Bitrate60sKbps:   timeseries.Kbps(e.bitrate.GetStats().Avg60s),
		AvgDecodeMs:      e.avgDecodeMs,
		MaxDecodeMs:      e.maxDecodeMs,
		TimestampMapSize: e.ts.size(),
	}
	if e.decodeSamples > 0 {
		s.DecodeP50Ms = e.digest.Quantile(0.50)
		s.DecodeP95Ms = e.digest.Quantile(0.95)
		s.DecodeP99Ms = e.digest.Quantile(0.99)
	}
	if e.hostLatencyCount > 0 {
		s.AvgHostLatencyMs = e.hostLatencySumMs / float64(e.hostLatencyCount)
	}
	return s
}

// TimestampMapSize returns the number of in-flight timestamp entries.
func (e *Engine) TimestampMapSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ts.size()
}
