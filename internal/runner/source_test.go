package runner

import (
	"testing"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
)

// =============================================================================
// Table-Driven Tests: GOP structure
// =============================================================================

func TestFrameSource_GOPPattern(t *testing.T) {
	src := NewFrameSource(SourceConfig{FPS: 60, KeyframeInterval: 10, Seed: 1})

	for i := 0; i < 30; i++ {
		u := src.Next()
		wantKey := i%10 == 0
		gotKey := u.FrameType == decoder.FrameTypeI
		if gotKey != wantKey {
			t.Errorf("frame %d: keyframe = %v, want %v", i, gotKey, wantKey)
		}
		if u.FrameNumber != i {
			t.Errorf("frame %d: FrameNumber = %d", i, u.FrameNumber)
		}
	}
	if src.Generated() != 30 {
		t.Errorf("Generated = %d, want 30", src.Generated())
	}
}

func TestFrameSource_PTSSpacing(t *testing.T) {
	src := NewFrameSource(SourceConfig{FPS: 60, Seed: 1})

	prev := src.Next()
	for i := 1; i < 5; i++ {
		u := src.Next()
		if step := u.PTS - prev.PTS; step != 16_666 {
			t.Errorf("frame %d: PTS step = %d, want 16666 (60fps in microseconds)", i, step)
		}
		prev = u
	}
}

func TestFrameSource_KeyframesAreLarger(t *testing.T) {
	src := NewFrameSource(SourceConfig{
		FPS:                60,
		KeyframeInterval:   5,
		DeltaFrameSize:     1000,
		KeyframeSizeFactor: 8,
		Seed:               1,
	})

	var keySizes, deltaSizes []int
	for i := 0; i < 20; i++ {
		u := src.Next()
		if u.FrameType == decoder.FrameTypeI {
			keySizes = append(keySizes, u.Size())
		} else {
			deltaSizes = append(deltaSizes, u.Size())
		}
	}

	// With +-25% jitter a keyframe (8000 +- 2000) always beats a delta
	// frame (1000 +- 250).
	for _, k := range keySizes {
		if k < 6000 || k > 10000 {
			t.Errorf("keyframe size %d outside jitter bounds", k)
		}
	}
	for _, d := range deltaSizes {
		if d < 750 || d > 1250 {
			t.Errorf("delta size %d outside jitter bounds", d)
		}
	}
}

func TestFrameSource_ForceKeyframe(t *testing.T) {
	src := NewFrameSource(SourceConfig{FPS: 60, KeyframeInterval: 100, Seed: 1})

	src.Next() // frame 0 is a keyframe by GOP position
	if u := src.Next(); u.FrameType != decoder.FrameTypeP {
		t.Fatal("frame 1 should be a delta frame")
	}

	src.ForceKeyframe()
	if u := src.Next(); u.FrameType != decoder.FrameTypeI {
		t.Error("ForceKeyframe not honored")
	}
	// One-shot: the next frame reverts to the GOP pattern.
	if u := src.Next(); u.FrameType != decoder.FrameTypeP {
		t.Error("ForceKeyframe stuck")
	}
}

func TestFrameSource_Deterministic(t *testing.T) {
	a := NewFrameSource(SourceConfig{FPS: 60, Seed: 99})
	b := NewFrameSource(SourceConfig{FPS: 60, Seed: 99})

	for i := 0; i < 10; i++ {
		ua, ub := a.Next(), b.Next()
		if ua.Size() != ub.Size() || ua.HostLatency != ub.HostLatency {
			t.Fatalf("frame %d diverged with identical seeds", i)
		}
	}
}

func TestFrameSource_HostLatencyRange(t *testing.T) {
	src := NewFrameSource(SourceConfig{FPS: 60, Seed: 3})
	for i := 0; i < 100; i++ {
		u := src.Next()
		// 1.0 to 5.0 ms in device units of 1/10 ms.
		if u.HostLatency < 10 || u.HostLatency >= 50 {
			t.Fatalf("HostLatency = %d outside [10, 50)", u.HostLatency)
		}
	}
}
