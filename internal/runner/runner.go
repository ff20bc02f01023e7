// Package runner drives a complete decode session against the simulated
// backend: synthetic bitstream in, pipeline in the middle, metrics and an
// optional dashboard out. It is the CLI's soak harness and doubles as the
// integration surface for end-to-end tests.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-decode-pipeline/internal/config"
	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
	"github.com/randomizedcoder/go-decode-pipeline/internal/metrics"
	"github.com/randomizedcoder/go-decode-pipeline/internal/pipeline"
	"github.com/randomizedcoder/go-decode-pipeline/internal/stats"
	"github.com/randomizedcoder/go-decode-pipeline/internal/supervisor"
	"github.com/randomizedcoder/go-decode-pipeline/internal/tui"
)

// maxSessionRestarts bounds recovery attempts after a failed session.
const maxSessionRestarts = 3

// Runner coordinates all components for one soak session.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger

	backend *decoder.Sim
	surface *decoder.SimSurface
	pipe    *pipeline.Pipeline
	source  *FrameSource

	collector     *metrics.Collector
	metricsServer *metrics.Server
	sup           *supervisor.Supervisor

	version   string
	startTime time.Time
}

// New creates a Runner with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *Runner {
	backend := decoder.NewSim(decoder.SimConfig{
		SyncSupported:       cfg.SyncProbe,
		DecodeDelay:         2 * time.Millisecond,
		KeyframeDelayFactor: 4,
	})

	pipe := pipeline.New(backend, logger)

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version:    version,
		Codec:      cfg.Codec,
		Resolution: fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		Mode:       cfg.Mode,
	})

	return &Runner{
		cfg:           cfg,
		logger:        logger,
		backend:       backend,
		surface:       decoder.NewSimSurface(1),
		pipe:          pipe,
		source:        NewFrameSource(SourceConfig{FPS: cfg.FPS}),
		collector:     collector,
		metricsServer: metrics.NewServer(cfg.MetricsAddr, logger),
		sup: supervisor.New(supervisor.Config{
			Logger:      logger,
			Backoff:     supervisor.DefaultBackoffConfig(),
			MaxRestarts: maxSessionRestarts,
			Seed:        time.Now().UnixNano(),
		}),
		version: version,
	}
}

// Pipeline exposes the pipeline, mainly for tests.
func (r *Runner) Pipeline() *pipeline.Pipeline { return r.pipe }

// Run executes the soak session. It blocks until the frame budget or
// duration elapses, a signal arrives, or the pipeline fails.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()

	r.pipe.SetCollector(r.collector)
	if err := r.pipe.Configure(*r.cfg); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := r.pipe.SetSurface(r.surface); err != nil {
		return fmt.Errorf("surface: %w", err)
	}
	if err := r.pipe.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	r.sup.SessionStarted()

	if err := r.metricsServer.Start(); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// Optional live dashboard.
	var program *tea.Program
	tuiDone := make(chan struct{})
	if r.cfg.TUIEnabled {
		model := tui.New(tui.Config{
			Codec:       r.cfg.Codec,
			Width:       r.cfg.Width,
			Height:      r.cfg.Height,
			TargetFPS:   r.cfg.FPS,
			MetricsAddr: r.cfg.MetricsAddr,
			StatsSource: r.pipe,
		})
		program = tea.NewProgram(model, tea.WithAltScreen())
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				r.logger.Error("tui_failed", "error", err)
			}
			cancel()
		}()
	} else {
		close(tuiDone)
	}

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		r.feed(ctx)
	}()

	go r.metricsLoop(ctx)

	var durationTimer <-chan time.Time
	if r.cfg.Duration > 0 {
		durationTimer = time.After(r.cfg.Duration)
	}

	select {
	case sig := <-sigCh:
		r.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		r.logger.Info("duration_elapsed", "duration", r.cfg.Duration.String())
	case <-feedDone:
		r.logger.Info("frame_budget_complete", "frames", r.source.Generated())
		// Let the tail of the pipeline drain before teardown.
		r.waitDrain(2 * time.Second)
	case <-ctx.Done():
		r.logger.Info("context_cancelled")
	}

	cancel()
	<-feedDone

	if program != nil {
		tui.SendQuit(program)
		select {
		case <-tuiDone:
		case <-time.After(2 * time.Second):
		}
	}

	// Final snapshot before teardown so the summary sees the whole run.
	r.recordSnapshot()
	finalStats := r.pipe.GetStats()
	finalMode := r.pipe.Mode()

	if err := r.pipe.Cleanup(); err != nil {
		r.logger.Warn("cleanup_incomplete", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	if !r.cfg.TUIEnabled {
		r.printExitSummary(finalStats, finalMode)
	}
	return nil
}

// feed submits synthetic frames at the stream frame rate until the frame
// budget is reached or the context ends.
func (r *Runner) feed(ctx context.Context) {
	interval := r.cfg.FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.pipe.NeedsIDR() {
			r.source.ForceKeyframe()
		}
		unit := r.source.Next()
		r.pipe.SubmitDecodeUnit(unit)

		if r.cfg.FrameCount > 0 && r.source.Generated() >= r.cfg.FrameCount {
			return
		}
		if r.pipe.State() == pipeline.StateFailed {
			if !r.restartSession(ctx) {
				return
			}
		}
	}
}

// restartSession tears down a failed session and brings up a fresh one,
// honoring the supervisor's backoff and restart budget. Returns false when
// the feed should give up.
func (r *Runner) restartSession(ctx context.Context) bool {
	if !r.sup.AllowRestart() {
		r.logger.Error("feed_stopping_restart_budget_exhausted",
			"restarts", r.sup.Restarts())
		return false
	}
	delay := r.sup.NextDelay()

	if err := r.pipe.Stop(); err != nil {
		r.logger.Warn("failed_session_stopped", "error", err)
	}
	if err := r.sup.Wait(ctx, delay); err != nil {
		return false
	}
	if err := r.pipe.Start(); err != nil {
		r.logger.Error("session_restart_failed", "error", err)
		return false
	}
	r.sup.SessionStarted()
	// The new decoder session has no reference frames yet.
	r.source.ForceKeyframe()
	r.logger.Info("session_restarted", "restart", r.sup.Restarts())
	return true
}

// metricsLoop pushes stats snapshots into the Prometheus collector.
func (r *Runner) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recordSnapshot()
		}
	}
}

func (r *Runner) recordSnapshot() {
	s := r.pipe.GetStats()
	r.collector.RecordStats(metrics.StatsUpdate{
		TotalFrames:      s.TotalFrames,
		DecodedFrames:    s.DecodedFrames,
		DroppedFrames:    s.DroppedFrames,
		TotalBytes:       s.TotalBytes,
		ReceivedFPS:      s.ReceivedFPS,
		RenderedFPS:      s.RenderedFPS,
		BitrateKbps:      s.BitrateKbps,
		Bitrate60sKbps:   s.Bitrate60sKbps,
		AvgDecodeMs:      s.AvgDecodeMs,
		MaxDecodeMs:      s.MaxDecodeMs,
		DecodeP50Ms:      s.DecodeP50Ms,
		DecodeP95Ms:      s.DecodeP95Ms,
		DecodeP99Ms:      s.DecodeP99Ms,
		AvgHostLatencyMs: s.AvgHostLatencyMs,
		SubmissionErrors: r.pipe.SubmissionErrors(),
		OutputErrors:     r.pipe.OutputErrors(),
		Reanchors:        r.pipe.Reanchors(),
		TimestampMapSize: s.TimestampMapSize,
		PendingQueueLen:  r.pipe.PendingLen(),
		FreeInputSlots:   r.pipe.FreeInputSlots(),
	})
}

// waitDrain polls until the decoder catches up with submitted frames or
// the grace period expires.
func (r *Runner) waitDrain(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		s := r.pipe.GetStats()
		if s.DecodedFrames+s.DroppedFrames >= s.TotalFrames {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// printExitSummary prints a summary of the session.
func (r *Runner) printExitSummary(s stats.Stats, mode string) {
	summary := r.collector.GenerateSummary()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Println("                   go-decode-pipeline Exit Summary")
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("Run Duration:           %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Printf("Mode:                   %s\n", mode)
	fmt.Println()
	fmt.Println("Frame Flow:")
	fmt.Printf("  Submitted:            %d\n", summary.TotalFrames)
	fmt.Printf("  Decoded:              %d\n", summary.DecodedFrames)
	fmt.Printf("  Dropped:              %d\n", summary.DroppedFrames)
	fmt.Printf("  Bytes:                %d\n", summary.TotalBytes)
	fmt.Println()
	fmt.Println("Decode Latency:")
	fmt.Printf("  Average:              %.2f ms\n", s.AvgDecodeMs)
	fmt.Printf("  P50 / P95 / P99:      %.2f / %.2f / %.2f ms\n",
		s.DecodeP50Ms, s.DecodeP95Ms, s.DecodeP99Ms)
	fmt.Printf("  Max:                  %.2f ms\n", s.MaxDecodeMs)
	fmt.Println()
}
