// Package main provides the go-decode-pipeline CLI entry point.
//
// go-decode-pipeline is a soak harness for the decode/present pipeline: it
// feeds a synthetic bitstream through the pipeline against a simulated
// hardware decoder and reports frame flow, decode latency, and drops.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-decode-pipeline/internal/config"
	"github.com/randomizedcoder/go-decode-pipeline/internal/logging"
	"github.com/randomizedcoder/go-decode-pipeline/internal/runner"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-decode-pipeline
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-decode-pipeline %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI is enabled, suppress logs so they do not fight the
	// dashboard for the terminal.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"codec", cfg.Codec,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
		"mode", cfg.Mode,
		"buffers", cfg.BufferCount,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	r := runner.New(cfg, logger, version)
	if err := r.Run(context.Background()); err != nil {
		logger.Error("runner_failed", "error", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       go-decode-pipeline                          ║")
	fmt.Println("║        Hardware Decode Pipeline Soak Harness                      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Stream:      %s %dx%d @ %.0f fps\n", cfg.Codec, cfg.Width, cfg.Height, cfg.FPS)
	fmt.Printf("  Color:       %s/%s %s\n", cfg.ColorSpace, cfg.ColorRange, cfg.HDR)
	fmt.Printf("  Mode:        %s (buffers=%d, 0=auto)\n", cfg.Mode, cfg.BufferCount)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.Duration > 0 {
		fmt.Printf("  Duration:    %s\n", cfg.Duration)
	}
	if cfg.FrameCount > 0 {
		fmt.Printf("  Frames:      %d\n", cfg.FrameCount)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
