// Package integration exercises the full decode path: synthetic bitstream,
// pipeline scheduling, simulated decoder hardware, and metrics, together.
package integration

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-decode-pipeline/internal/config"
	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
	"github.com/randomizedcoder/go-decode-pipeline/internal/logging"
	"github.com/randomizedcoder/go-decode-pipeline/internal/metrics"
	"github.com/randomizedcoder/go-decode-pipeline/internal/pipeline"
	"github.com/randomizedcoder/go-decode-pipeline/internal/runner"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// soak pushes a generated stream through a freshly built pipeline and
// returns it still running, with every frame resolved.
func soak(t *testing.T, mode string, syncSupported bool, frames int) (*pipeline.Pipeline, *decoder.Sim) {
	t.Helper()

	var logBuf bytes.Buffer
	logger := logging.NewLoggerWithWriter(&logBuf, "json", "info")

	sim := decoder.NewSim(decoder.SimConfig{
		SyncSupported:       syncSupported,
		DecodeDelay:         200 * time.Microsecond,
		KeyframeDelayFactor: 4,
	})

	cfg := *config.DefaultConfig()
	cfg.Mode = mode
	cfg.FPS = 120 // fast soak

	p := pipeline.New(sim, logger)
	if err := p.Configure(cfg); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := p.SetSurface(decoder.NewSimSurface(1)); err != nil {
		t.Fatalf("surface: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { p.Cleanup() })

	source := runner.NewFrameSource(runner.SourceConfig{
		FPS:              cfg.FPS,
		KeyframeInterval: 30,
		DeltaFrameSize:   4 * 1024,
		Seed:             1,
	})

	interval := cfg.FrameInterval()
	for i := 0; i < frames; i++ {
		if p.NeedsIDR() {
			source.ForceKeyframe()
		}
		p.SubmitDecodeUnit(source.Next())
		time.Sleep(interval)
	}

	waitFor(t, func() bool {
		s := p.GetStats()
		return s.DecodedFrames+s.DroppedFrames >= s.TotalFrames && s.TotalFrames > 0
	}, "stream to drain")

	return p, sim
}

// =============================================================================
// End-to-End: Async soak
// =============================================================================

func TestEndToEnd_AsyncSoak(t *testing.T) {
	if testing.Short() {
		t.Skip("soak test")
	}
	const frames = 240 // 2 seconds at 120fps

	p, sim := soak(t, config.ModeAsync, false, frames)

	if got := p.Mode(); got != config.ModeAsync {
		t.Errorf("mode = %q, want async", got)
	}
	s := p.GetStats()
	if s.TotalFrames != frames {
		t.Errorf("TotalFrames = %d, want %d", s.TotalFrames, frames)
	}
	// A healthy simulated decoder on a paced stream decodes everything.
	if s.DroppedFrames != 0 {
		t.Errorf("DroppedFrames = %d, want 0", s.DroppedFrames)
	}
	if s.DecodedFrames != frames {
		t.Errorf("DecodedFrames = %d, want %d", s.DecodedFrames, frames)
	}
	if sim.Rendered() != int64(frames) {
		t.Errorf("Rendered = %d, want %d", sim.Rendered(), frames)
	}
	if s.AvgDecodeMs <= 0 {
		t.Error("decode latency never measured")
	}
	if p.NeedsIDR() {
		t.Error("NeedsIDR raised on a clean soak")
	}
}

// =============================================================================
// End-to-End: Sync soak
// =============================================================================

func TestEndToEnd_SyncSoak(t *testing.T) {
	if testing.Short() {
		t.Skip("soak test")
	}
	const frames = 240

	p, _ := soak(t, config.ModeSync, true, frames)

	if got := p.Mode(); got != config.ModeSync {
		t.Errorf("mode = %q, want sync", got)
	}
	s := p.GetStats()
	if s.TotalFrames != frames {
		t.Errorf("TotalFrames = %d, want %d", s.TotalFrames, frames)
	}
	if s.DecodedFrames+s.DroppedFrames != frames {
		t.Errorf("decoded %d + dropped %d != %d", s.DecodedFrames, s.DroppedFrames, frames)
	}
	// The paced sync path should decode nearly everything; a handful of
	// drops under scheduler noise is tolerable, wholesale loss is not.
	if s.DecodedFrames < frames*9/10 {
		t.Errorf("DecodedFrames = %d, want >= %d", s.DecodedFrames, frames*9/10)
	}
}

// =============================================================================
// End-to-End: Metrics export
// =============================================================================

func TestEndToEnd_MetricsPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("soak test")
	}
	const frames = 120

	p, _ := soak(t, config.ModeAsync, false, frames)

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:    "test",
		Codec:      "h264",
		Resolution: "1280x720",
		Mode:       p.Mode(),
	}, prometheus.NewRegistry())

	s := p.GetStats()
	collector.RecordStats(metrics.StatsUpdate{
		TotalFrames:   s.TotalFrames,
		DecodedFrames: s.DecodedFrames,
		DroppedFrames: s.DroppedFrames,
		TotalBytes:    s.TotalBytes,
	})

	summary := collector.GenerateSummary()
	if summary.TotalFrames != int64(frames) {
		t.Errorf("summary frames = %d, want %d", summary.TotalFrames, frames)
	}
	if summary.TotalBytes != s.TotalBytes || summary.TotalBytes == 0 {
		t.Errorf("summary bytes = %d, want %d (nonzero)", summary.TotalBytes, s.TotalBytes)
	}
}

// =============================================================================
// End-to-End: Flush and keyframe recovery mid-stream
// =============================================================================

func TestEndToEnd_FlushRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("soak test")
	}

	p, sim := soak(t, config.ModeAsync, false, 60)

	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !p.NeedsIDR() {
		t.Fatal("flush did not request a keyframe")
	}

	source := runner.NewFrameSource(runner.SourceConfig{FPS: 120, Seed: 2})
	source.ForceKeyframe()
	if !p.SubmitDecodeUnit(source.Next()) {
		t.Fatal("post-flush keyframe rejected")
	}
	if p.NeedsIDR() {
		t.Error("keyframe did not clear the request")
	}

	before := sim.Rendered()
	waitFor(t, func() bool { return sim.Rendered() > before }, "post-flush frame to render")
}
