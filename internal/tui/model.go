package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-decode-pipeline/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries an updated stats snapshot.
type StatsMsg struct {
	Stats stats.Stats
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatsSource provides the live session snapshot.
type StatsSource interface {
	GetStats() stats.Stats
	Mode() string
	NeedsIDR() bool
	PendingLen() int
	Reanchors() int64
}

// Config holds TUI configuration.
type Config struct {
	Codec       string
	Width       int
	Height      int
	TargetFPS   float64
	MetricsAddr string
	StatsSource StatsSource
}

// Model represents the TUI state.
type Model struct {
	// Session description
	codec       string
	videoWidth  int
	videoHeight int
	targetFPS   float64
	metricsAddr string

	// Current state
	stats      stats.Stats
	mode       string
	needsIDR   bool
	pendingLen int
	reanchors  int64
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	source StatsSource

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		codec:       cfg.Codec,
		videoWidth:  cfg.Width,
		videoHeight: cfg.Height,
		targetFPS:   cfg.TargetFPS,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.StatsSource,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.stats = m.source.GetStats()
			m.mode = m.source.Mode()
			m.needsIDR = m.source.NeedsIDR()
			m.pendingLen = m.source.PendingLen()
			m.reanchors = m.source.Reanchors()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the session started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// DropRate returns the fraction of accepted frames that were dropped.
func (m Model) DropRate() float64 {
	if m.stats.TotalFrames == 0 {
		return 0
	}
	return float64(m.stats.DroppedFrames) / float64(m.stats.TotalFrames)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, s stats.Stats) {
	if p != nil {
		p.Send(StatsMsg{Stats: s})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// formatMs formats a millisecond value with sub-millisecond precision.
func formatMs(ms float64) string {
	if ms < 1.0 {
		return fmt.Sprintf("%.2f ms", ms)
	}
	return fmt.Sprintf("%.1f ms", ms)
}

// formatFPS formats a frame rate.
func formatFPS(fps float64) string {
	return fmt.Sprintf("%.1f fps", fps)
}

// formatPercent formats a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
