package runner

import (
	"math/rand"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
)

// SourceConfig controls the synthetic bitstream generator.
type SourceConfig struct {
	// FPS sets the PTS spacing of generated frames.
	FPS float64

	// KeyframeInterval is the GOP length in frames. Zero means 60.
	KeyframeInterval int

	// DeltaFrameSize is the mean delta frame payload size in bytes.
	// Zero means 8 KiB, roughly a 4 Mbps 60fps stream.
	DeltaFrameSize int

	// KeyframeSizeFactor multiplies DeltaFrameSize for keyframes.
	// Zero means 8.
	KeyframeSizeFactor int

	// Seed makes the size jitter reproducible.
	Seed int64
}

// FrameSource generates a deterministic synthetic H.26x-shaped frame
// sequence: a keyframe opening each GOP, delta frames between, sizes
// jittered around the configured means.
type FrameSource struct {
	cfg SourceConfig

	rng         *rand.Rand
	frameNumber int
	ptsStep     int64
	forceKey    bool
}

// NewFrameSource creates a generator.
func NewFrameSource(cfg SourceConfig) *FrameSource {
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = 60
	}
	if cfg.DeltaFrameSize <= 0 {
		cfg.DeltaFrameSize = 8 * 1024
	}
	if cfg.KeyframeSizeFactor <= 0 {
		cfg.KeyframeSizeFactor = 8
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 60
	}
	return &FrameSource{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		ptsStep: int64(1e6 / fps),
	}
}

// Next returns the next frame in the sequence.
func (s *FrameSource) Next() decoder.DecodeUnit {
	n := s.frameNumber
	s.frameNumber++

	keyframe := n%s.cfg.KeyframeInterval == 0 || s.forceKey
	s.forceKey = false

	size := s.cfg.DeltaFrameSize
	if keyframe {
		size *= s.cfg.KeyframeSizeFactor
	}
	// +-25% jitter.
	size += s.rng.Intn(size/2+1) - size/4

	ft := decoder.FrameTypeP
	if keyframe {
		ft = decoder.FrameTypeI
	}

	return decoder.DecodeUnit{
		FrameNumber: n,
		FrameType:   ft,
		Payload:     make([]byte, size),
		PTS:         int64(n) * s.ptsStep,
		HostLatency: uint16(10 + s.rng.Intn(40)), // 1.0-5.0 ms in 1/10 ms units
	}
}

// ForceKeyframe makes the next frame a keyframe, mirroring the host
// honoring an IDR request.
func (s *FrameSource) ForceKeyframe() {
	s.forceKey = true
}

// Generated returns how many frames have been produced.
func (s *FrameSource) Generated() int {
	return s.frameNumber
}
