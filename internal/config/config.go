// Package config provides configuration management for go-decode-pipeline.
//
// A pipeline has exactly one active Config at a time. Setters mutate a
// pending copy that only takes effect at the next Start()/reconfigure;
// a hardware decoder cannot change parameters mid-stream.
package config

import (
	"sync"
	"time"
)

// Concurrency modes.
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

// Buffer count bounds.
const (
	// BufferCountAuto selects the mode-dependent automatic buffer count.
	BufferCountAuto = 0

	// BufferCountMin and BufferCountMax bound explicit buffer counts.
	BufferCountMin = 2
	BufferCountMax = 8

	// autoBufferCountAsync is the automatic choice for async/direct mode:
	// the smallest pool the decoder accepts, for lowest latency.
	autoBufferCountAsync = 2

	// autoBufferCountSync is the automatic choice once sync mode is
	// active. Sync mode self-manages drain timing and needs headroom.
	autoBufferCountSync = 4
)

// Config holds all configuration for a pipeline instance.
type Config struct {
	// Video format
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	Codec  string  `json:"codec"` // h264, hevc, av1

	// Color pipeline
	ColorSpace string `json:"color_space"` // bt601, bt709, bt2020
	ColorRange string `json:"color_range"` // limited, full
	HDR        string `json:"hdr"`         // sdr, hdr10

	// Buffering and concurrency
	BufferCount  int    `json:"buffer_count"` // 0 = auto, else clamped to [2,8]
	Mode         string `json:"mode"`         // async, sync
	VSyncEnabled bool   `json:"vsync_enabled"`
	VRREnabled   bool   `json:"vrr_enabled"`

	// Scheduler tunables. These were tuned empirically against one
	// hardware platform and are deliberately configurable rather than
	// fixed invariants.
	DirectSubmitAttempts int           `json:"direct_submit_attempts"`
	DirectSubmitTimeout  time.Duration `json:"direct_submit_timeout"`
	PushRetryLimit       int           `json:"push_retry_limit"`
	AsyncAcquireTimeout  time.Duration `json:"async_acquire_timeout"`
	DrainBatchSize       int           `json:"drain_batch_size"`
	OutputErrorLimit     int           `json:"output_error_limit"`
	PendingQueueCap      int           `json:"pending_queue_cap"`
	TimestampMapCap      int           `json:"timestamp_map_cap"`

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	LogFormat   string `json:"log_format"` // json, text
	Verbose     bool   `json:"verbose"`
	TUIEnabled  bool   `json:"tui"`

	// Soak runner (CLI only)
	FrameCount int           `json:"frame_count"` // 0 = until duration/ctrl-c
	Duration   time.Duration `json:"duration"`    // 0 = forever
	SyncProbe  bool          `json:"sync_probe"`  // simulated backend reports sync capability
}

// DefaultConfig returns the SDR baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Width:  1280,
		Height: 720,
		FPS:    60,
		Codec:  "h264",

		ColorSpace: "bt709",
		ColorRange: "limited",
		HDR:        "sdr",

		BufferCount:  BufferCountAuto,
		Mode:         ModeAsync,
		VSyncEnabled: true,
		VRREnabled:   false,

		DirectSubmitAttempts: 3,
		DirectSubmitTimeout:  2 * time.Millisecond,
		PushRetryLimit:       2,
		AsyncAcquireTimeout:  30 * time.Millisecond,
		DrainBatchSize:       4,
		OutputErrorLimit:     50,
		PendingQueueCap:      16,
		TimestampMapCap:      256,

		MetricsAddr: "0.0.0.0:17092",
		LogFormat:   "json",

		SyncProbe: true,
	}
}

// ClampBufferCount applies the explicit-count clamp: 0 stays automatic,
// anything else lands in [BufferCountMin, BufferCountMax].
func ClampBufferCount(n int) int {
	if n == BufferCountAuto {
		return BufferCountAuto
	}
	if n < BufferCountMin {
		return BufferCountMin
	}
	if n > BufferCountMax {
		return BufferCountMax
	}
	return n
}

// EffectiveBufferCount resolves the buffer count for a session. syncActive
// must reflect the mode actually in use after the capability probe, not the
// requested one.
func (c *Config) EffectiveBufferCount(syncActive bool) int {
	if n := ClampBufferCount(c.BufferCount); n != BufferCountAuto {
		return n
	}
	if syncActive {
		return autoBufferCountSync
	}
	return autoBufferCountAsync
}

// FrameInterval returns the nominal time between frames.
func (c *Config) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 60
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// Manager owns the pending and active configuration for one pipeline.
//
// Setters are idempotent and touch only the pending copy; Apply() snapshots
// pending into active and is called exclusively by the pipeline at Start.
// ResetToDefaults is called only at full session teardown, never on a
// mid-session reconfigure, so a resolution change cannot glitch the color
// pipeline of a live stream.
type Manager struct {
	mu        sync.Mutex
	pending   Config
	active    Config
	hasActive bool
}

// NewManager creates a Manager seeded with defaults.
func NewManager() *Manager {
	return &Manager{pending: *DefaultConfig()}
}

// Configure validates cfg, clamps the buffer count, and stores it as the
// pending configuration.
func (m *Manager) Configure(cfg Config) error {
	if err := Validate(&cfg); err != nil {
		return err
	}
	cfg.BufferCount = ClampBufferCount(cfg.BufferCount)

	m.mu.Lock()
	m.pending = cfg
	m.mu.Unlock()
	return nil
}

// Apply promotes pending to active. Called at Start.
func (m *Manager) Apply() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = m.pending
	m.hasActive = true
	return m.active
}

// Active returns the configuration currently applied to the decoder.
func (m *Manager) Active() (Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.hasActive
}

// Pending returns the configuration the next Start will apply.
func (m *Manager) Pending() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// SetDimensions updates the pending stream dimensions.
func (m *Manager) SetDimensions(width, height int) {
	m.mu.Lock()
	m.pending.Width = width
	m.pending.Height = height
	m.mu.Unlock()
}

// SetColorPipeline updates the pending color configuration.
func (m *Manager) SetColorPipeline(space, rng, hdr string) {
	m.mu.Lock()
	m.pending.ColorSpace = space
	m.pending.ColorRange = rng
	m.pending.HDR = hdr
	m.mu.Unlock()
}

// SetBufferCount updates the pending buffer count, clamped.
func (m *Manager) SetBufferCount(n int) {
	m.mu.Lock()
	m.pending.BufferCount = ClampBufferCount(n)
	m.mu.Unlock()
}

// SetMode updates the pending concurrency mode. Invalid values are ignored.
func (m *Manager) SetMode(mode string) {
	if mode != ModeAsync && mode != ModeSync {
		return
	}
	m.mu.Lock()
	m.pending.Mode = mode
	m.mu.Unlock()
}

// SetVSync updates the pending vsync flag.
func (m *Manager) SetVSync(enabled bool) {
	m.mu.Lock()
	m.pending.VSyncEnabled = enabled
	m.mu.Unlock()
}

// SetVRR updates the pending variable-refresh flag.
func (m *Manager) SetVRR(enabled bool) {
	m.mu.Lock()
	m.pending.VRREnabled = enabled
	m.mu.Unlock()
}

// ResetToDefaults restores the SDR baseline. Full-teardown only.
func (m *Manager) ResetToDefaults() {
	m.mu.Lock()
	m.pending = *DefaultConfig()
	m.active = Config{}
	m.hasActive = false
	m.mu.Unlock()
}
