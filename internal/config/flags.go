package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ParseFlags parses command-line flags and returns a Config.
//
// A .env file in the working directory, if present, is loaded first so that
// soak rigs can pin defaults (DECODE_PIPELINE_METRICS_ADDR etc.) without
// repeating flags.
func ParseFlags() (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-decode-pipeline - decode/present pipeline soak harness

Usage:
  go-decode-pipeline [flags]

Video Format:
`)
		printFlagCategory([]string{"width", "height", "fps", "codec"})

		fmt.Fprintf(os.Stderr, "\nColor Pipeline:\n")
		printFlagCategory([]string{"color-space", "color-range", "hdr"})

		fmt.Fprintf(os.Stderr, "\nBuffering / Concurrency:\n")
		printFlagCategory([]string{"buffers", "mode", "vsync", "vrr", "sync-probe"})

		fmt.Fprintf(os.Stderr, "\nSoak Run:\n")
		printFlagCategory([]string{"frames", "duration"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "log-format", "v", "tui"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # 10 second async soak at 1080p60
  go-decode-pipeline -width 1920 -height 1080 -fps 60 -duration 10s

  # Sync mode with explicit buffer pool and live dashboard
  go-decode-pipeline -mode sync -buffers 6 -tui
`)
	}

	flag.IntVar(&cfg.Width, "width", cfg.Width, "stream width in pixels")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "stream height in pixels")
	flag.Float64Var(&cfg.FPS, "fps", cfg.FPS, "stream frame rate")
	flag.StringVar(&cfg.Codec, "codec", cfg.Codec, "codec: h264, hevc, av1")

	flag.StringVar(&cfg.ColorSpace, "color-space", cfg.ColorSpace, "color space: bt601, bt709, bt2020")
	flag.StringVar(&cfg.ColorRange, "color-range", cfg.ColorRange, "color range: limited, full")
	flag.StringVar(&cfg.HDR, "hdr", cfg.HDR, "transfer: sdr, hdr10")

	flag.IntVar(&cfg.BufferCount, "buffers", cfg.BufferCount, "decoder buffer count (0 = automatic)")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "concurrency mode: async, sync")
	flag.BoolVar(&cfg.VSyncEnabled, "vsync", cfg.VSyncEnabled, "clock-locked presentation (false = immediate)")
	flag.BoolVar(&cfg.VRREnabled, "vrr", cfg.VRREnabled, "send variable-refresh hint to the surface")
	flag.BoolVar(&cfg.SyncProbe, "sync-probe", cfg.SyncProbe, "simulated backend reports sync capability")

	flag.IntVar(&cfg.FrameCount, "frames", cfg.FrameCount, "number of frames to feed (0 = until duration)")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "soak duration (0 = forever)")

	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json, text")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose (debug) logging")
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "live terminal dashboard")

	flag.Parse()

	return cfg, nil
}

// applyEnvOverrides maps environment variables onto defaults. Flags still
// win over the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DECODE_PIPELINE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("DECODE_PIPELINE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DECODE_PIPELINE_MODE"); v != "" {
		cfg.Mode = v
	}
}

// printFlagCategory prints the named flags in declaration order.
func printFlagCategory(names []string) {
	for _, name := range names {
		f := flag.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(os.Stderr, "  -%-14s %s (default %q)\n", f.Name, f.Usage, f.DefValue)
	}
}
