// Package pipeline coordinates a hardware video decoder session: buffer
// flow between the network layer and the decoder, submission scheduling,
// presentation timing, and session statistics.
//
// A Pipeline drives one decoder.Backend through its lifecycle. The backend
// is operated in one of two concurrency modes, chosen at Start:
//
//   - async: the backend pushes buffer events from its own threads; the
//     pipeline's event loop consumes them from a bounded channel.
//   - sync: the pipeline polls the backend from a dedicated goroutine,
//     draining queued frames and collecting decoded output.
//
// Sync mode is only used when both requested and supported; otherwise the
// pipeline falls back to async and logs the downgrade once.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-decode-pipeline/internal/buffers"
	"github.com/randomizedcoder/go-decode-pipeline/internal/config"
	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
	"github.com/randomizedcoder/go-decode-pipeline/internal/logging"
	"github.com/randomizedcoder/go-decode-pipeline/internal/metrics"
	"github.com/randomizedcoder/go-decode-pipeline/internal/presentation"
	"github.com/randomizedcoder/go-decode-pipeline/internal/stats"
)

const (
	// samplerInterval bounds per-frame error log volume. At 60fps a wedged
	// decoder would otherwise emit thousands of identical lines.
	samplerInterval = time.Second

	// eventQueueSlack is extra event channel headroom beyond the buffer
	// pool, covering error events interleaved with buffer events.
	eventQueueSlack = 16
)

// Pipeline owns one decoder session end to end.
type Pipeline struct {
	id      string
	logger  *slog.Logger
	backend decoder.Backend
	cfgMgr  *config.Manager

	mu      sync.Mutex
	state   State
	surface decoder.Surface

	// Session objects, rebuilt on each Start. Read-only while running.
	activeCfg  config.Config
	syncActive bool
	coord      *buffers.Coordinator
	timer      *presentation.Timer
	events     chan event
	done       chan struct{}
	stopOnce   *sync.Once
	wg         sync.WaitGroup

	// stats survives restarts within a pipeline instance so a reconfigure
	// mid-stream does not zero the session counters.
	stats *stats.Engine

	collector *metrics.Collector

	running          atomic.Bool
	needsIDR         atomic.Bool
	terminalFlag     atomic.Bool
	terminalErr      atomic.Value // error
	consecOutputErrs atomic.Int64
	eventOverflow    atomic.Int64

	submitSampler *logging.Sampler
	outputSampler *logging.Sampler
	errorSampler  *logging.Sampler
	dropSampler   *logging.Sampler
}

// New creates a pipeline around the given backend. The pipeline must be
// Configure'd and given a surface before Start.
func New(backend decoder.Backend, logger *slog.Logger) *Pipeline {
	id := uuid.New().String()
	logger = logger.With("pipeline_id", id)
	return &Pipeline{
		id:            id,
		logger:        logger,
		backend:       backend,
		cfgMgr:        config.NewManager(),
		state:         StateCreated,
		submitSampler: logging.NewSampler(logger, samplerInterval),
		outputSampler: logging.NewSampler(logger, samplerInterval),
		errorSampler:  logging.NewSampler(logger, samplerInterval),
		dropSampler:   logging.NewSampler(logger, samplerInterval),
	}
}

// ID returns the pipeline's session identifier.
func (p *Pipeline) ID() string { return p.id }

// SetCollector attaches a Prometheus collector for per-frame observations.
// Optional; nil disables histogram recording.
func (p *Pipeline) SetCollector(c *metrics.Collector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collector = c
}

// Configure validates cfg and stages it for the next Start. It never
// disturbs a running session.
func (p *Pipeline) Configure(cfg config.Config) error {
	if err := p.cfgMgr.Configure(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateCreated || p.state == StateStopped {
		p.state = StateConfigured
	}
	p.logger.Debug("pipeline_configured",
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
		"codec", cfg.Codec,
		"mode", cfg.Mode,
	)
	return nil
}

// SetSurface binds the presentation target. Required before Start.
func (p *Pipeline) SetSurface(s decoder.Surface) error {
	if err := p.backend.SetSurface(s); err != nil {
		return fmt.Errorf("set surface: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = s
	return nil
}

// ReleaseSurface unbinds the presentation target.
func (p *Pipeline) ReleaseSurface() {
	p.backend.ReleaseSurface()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = nil
}

// SetHDRMetadata forwards HDR10 static metadata to the decoder. May be
// called before or during a session; takes effect on the next frame.
func (p *Pipeline) SetHDRMetadata(meta decoder.HDRMetadata) error {
	if err := p.backend.SetHDRMetadata(meta); err != nil {
		return fmt.Errorf("set hdr metadata: %w", err)
	}
	p.logger.Info("hdr_metadata_forwarded",
		"max_display_lum", meta.MaxDisplayLum,
		"max_content_light", meta.MaxContentLight,
	)
	return nil
}

// Start applies the pending configuration and brings the decoder up.
// The concurrency mode and buffer count are resolved here: sync mode is
// downgraded to async when the platform cannot poll, and an unsupported
// codec steps down toward H.264 before configuration fails outright.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateRunning {
		return nil
	}
	if p.state != StateConfigured && p.state != StateStopped && p.state != StateFailed {
		return fmt.Errorf("%w: start from state %s", ErrConfiguration, p.state)
	}
	if p.surface == nil {
		return ErrNoSurface
	}

	cfg := p.cfgMgr.Apply()

	// Codec step-down against the capability report.
	caps := p.backend.Capabilities()
	codec, err := decoder.ParseCodec(cfg.Codec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	for !caps.SupportsCodec(codec) {
		next, ok := codec.StepDown()
		if !ok {
			return fmt.Errorf("%w: no supported codec at or below %s", ErrConfiguration, cfg.Codec)
		}
		p.logger.Warn("codec_unsupported_stepping_down",
			"requested", codec.String(),
			"fallback", next.String(),
		)
		codec = next
		cfg.Codec = codec.String()
	}

	// Capability probe. A sync request on a callback-only platform
	// downgrades to async for the whole session.
	syncActive := cfg.Mode == config.ModeSync && p.backend.SupportsSync()
	if cfg.Mode == config.ModeSync && !syncActive {
		p.logger.Warn("sync_mode_unsupported_falling_back",
			"requested_mode", config.ModeSync,
			"active_mode", config.ModeAsync,
		)
	}

	format, err := cfg.Format(syncActive)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// Configure with step-down retry: some platforms advertise a codec
	// but reject it for the requested resolution or profile.
	for {
		err := p.backend.Configure(format)
		if err == nil {
			break
		}
		next, ok := format.Codec.StepDown()
		if !ok {
			return fmt.Errorf("%w: configure: %v", ErrConfiguration, err)
		}
		p.logger.Warn("codec_configure_failed_stepping_down",
			"codec", format.Codec.String(),
			"fallback", next.String(),
			"error", err,
		)
		format.Codec = next
		cfg.Codec = next.String()
	}

	if err := p.backend.Prepare(); err != nil {
		return fmt.Errorf("%w: prepare: %v", ErrConfiguration, err)
	}

	if cfg.VRREnabled {
		err := p.surface.SetExpectedFrameRateRange(cfg.FPS/2, cfg.FPS, cfg.FPS)
		switch {
		case errors.Is(err, decoder.ErrUnsupported):
			p.logger.Debug("vrr_hint_unsupported")
		case err != nil:
			p.logger.Warn("vrr_hint_failed", "error", err)
		}
	}

	policy := presentation.PolicyImmediate
	if cfg.VSyncEnabled {
		policy = presentation.PolicyLocked
	}

	p.activeCfg = cfg
	p.syncActive = syncActive
	p.coord = buffers.New(cfg.PendingQueueCap)
	p.timer = presentation.New(policy, cfg.FPS)
	if p.stats == nil {
		p.stats = stats.NewEngine(cfg.TimestampMapCap)
	}
	p.consecOutputErrs.Store(0)
	p.terminalFlag.Store(false)
	p.done = make(chan struct{})
	p.stopOnce = new(sync.Once)
	p.running.Store(true)

	if syncActive {
		p.wg.Add(1)
		go p.pollLoop()
	} else {
		p.events = make(chan event, 4*format.BufferDepth+eventQueueSlack)
		if err := p.backend.RegisterSink(&backendSink{p: p}); err != nil {
			p.running.Store(false)
			return fmt.Errorf("%w: register sink: %v", ErrConfiguration, err)
		}
		p.wg.Add(1)
		go p.eventLoop(p.done)
	}

	if err := p.backend.Start(); err != nil {
		p.running.Store(false)
		p.stopOnce.Do(func() { close(p.done) })
		p.coord.Close()
		p.wg.Wait()
		return fmt.Errorf("%w: start: %v", ErrConfiguration, err)
	}

	p.state = StateRunning
	p.logger.Info("pipeline_started",
		"mode", p.modeLocked(),
		"codec", format.Codec.String(),
		"width", format.Width,
		"height", format.Height,
		"fps", format.FPS,
		"buffer_count", format.BufferDepth,
		"presentation", policy.String(),
		"hdr", format.HDR.String(),
	)
	return nil
}

// Stop halts the session. Queued frames are discarded and counted as
// dropped. If the session went unhealthy, the terminal error is returned.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil
	}
	coord := p.coord
	p.mu.Unlock()

	p.running.Store(false)
	p.stopOnce.Do(func() { close(p.done) })
	coord.Close()
	p.wg.Wait()

	discarded := coord.PendingDiscard()
	for range discarded {
		p.stats.RecordDropped()
	}

	stopErr := p.backend.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if terr := p.terminalError(); terr != nil {
		p.state = StateFailed
		p.logger.Error("pipeline_stopped_unhealthy", "error", terr)
		return terr
	}
	p.state = StateStopped
	p.logger.Info("pipeline_stopped", "discarded", len(discarded))
	if stopErr != nil {
		return fmt.Errorf("stop decoder: %w", stopErr)
	}
	return nil
}

// Flush discards all in-flight frames without stopping the session: queued
// frames, decoder-internal work, and the presentation anchor. The decoder
// needs a keyframe to resume, so NeedsIDR is raised.
func (p *Pipeline) Flush() error {
	if !p.running.Load() {
		return ErrNotRunning
	}
	discarded := p.coord.PendingDiscard()
	for range discarded {
		p.stats.RecordDropped()
	}
	if err := p.backend.Flush(); err != nil {
		return fmt.Errorf("flush decoder: %w", err)
	}
	p.timer.Reset()
	p.needsIDR.Store(true)
	p.logger.Info("pipeline_flushed", "discarded", len(discarded))
	return nil
}

// Cleanup stops the session and destroys the decoder. The pipeline returns
// to its initial state with default configuration; the stats engine is
// discarded with the session.
func (p *Pipeline) Cleanup() error {
	stopErr := p.Stop()
	if errors.Is(stopErr, ErrUnhealthy) {
		// Already logged; cleanup proceeds regardless.
		stopErr = nil
	}
	destroyErr := p.backend.Destroy()
	p.backend.ReleaseSurface()
	p.cfgMgr.ResetToDefaults()

	p.mu.Lock()
	p.surface = nil
	p.stats = nil
	p.state = StateCreated
	p.mu.Unlock()

	p.logger.Info("pipeline_cleaned_up")
	return errors.Join(stopErr, destroyErr)
}

// Reconfigure changes the stream dimensions, restarting the decoder if it
// was running. The color pipeline and all other settings are preserved;
// a resolution change mid-stream must not blank HDR or color state.
func (p *Pipeline) Reconfigure(width, height int) error {
	p.mu.Lock()
	wasRunning := p.state == StateRunning
	p.mu.Unlock()

	if wasRunning {
		if err := p.Stop(); err != nil {
			return fmt.Errorf("reconfigure: %w", err)
		}
	}
	p.cfgMgr.SetDimensions(width, height)

	p.mu.Lock()
	if p.state == StateStopped || p.state == StateCreated {
		p.state = StateConfigured
	}
	p.mu.Unlock()

	p.logger.Info("pipeline_reconfigured", "width", width, "height", height)
	if wasRunning {
		return p.Start()
	}
	return nil
}

// State returns the pipeline's lifecycle state. A session that went
// unhealthy reports StateFailed even before Stop is called.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning && p.terminalFlag.Load() {
		return StateFailed
	}
	return p.state
}

// Mode returns the active concurrency mode, resolved after the capability
// probe. Empty until the first Start.
func (p *Pipeline) Mode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modeLocked()
}

func (p *Pipeline) modeLocked() string {
	if p.activeCfg.Mode == "" {
		return ""
	}
	if p.syncActive {
		return config.ModeSync
	}
	return config.ModeAsync
}

// NeedsIDR reports whether the pipeline requires a keyframe to make
// progress, raised on any frame drop or flush and cleared when the next
// keyframe is submitted.
func (p *Pipeline) NeedsIDR() bool {
	return p.needsIDR.Load()
}

// GetStats returns a snapshot of the session statistics.
func (p *Pipeline) GetStats() stats.Stats {
	p.mu.Lock()
	eng := p.stats
	p.mu.Unlock()
	if eng == nil {
		return stats.Stats{}
	}
	return eng.Snapshot()
}

// GetCapabilities returns the decoder backend's capability report.
func (p *Pipeline) GetCapabilities() decoder.Capabilities {
	return p.backend.Capabilities()
}

// Reanchors returns how many times the presentation timeline re-anchored.
func (p *Pipeline) Reanchors() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer == nil {
		return 0
	}
	return p.timer.Reanchors()
}

// PendingLen returns the depth of the sync-mode pending frame queue.
func (p *Pipeline) PendingLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.coord == nil {
		return 0
	}
	return p.coord.PendingLen()
}

// FreeInputSlots returns the number of input buffers available for filling.
func (p *Pipeline) FreeInputSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.coord == nil {
		return 0
	}
	return p.coord.FreeLen()
}

// SubmissionErrors returns the total input submission failures.
func (p *Pipeline) SubmissionErrors() int64 { return p.submitSampler.Total() }

// OutputErrors returns the total presentation failures.
func (p *Pipeline) OutputErrors() int64 { return p.outputSampler.Total() }

// EventOverflow returns how many backend events were discarded because the
// event channel was full.
func (p *Pipeline) EventOverflow() int64 { return p.eventOverflow.Load() }

// failTerminal marks the session unhealthy. The submission and event paths
// shut down; Stop reports err to the caller.
func (p *Pipeline) failTerminal(err error) {
	if !p.terminalFlag.CompareAndSwap(false, true) {
		return
	}
	p.terminalErr.Store(err)
	p.running.Store(false)
	p.coord.Close()
	p.logger.Error("pipeline_unhealthy", "error", err)
}

func (p *Pipeline) terminalError() error {
	if !p.terminalFlag.Load() {
		return nil
	}
	if err, ok := p.terminalErr.Load().(error); ok {
		return err
	}
	return ErrUnhealthy
}
