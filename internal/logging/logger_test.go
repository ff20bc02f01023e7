package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// =============================================================================
// Table-Driven Tests: Level Parsing
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := parseLevel(tc.input); got != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

// =============================================================================
// Table-Driven Tests: Construction
// =============================================================================

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON", "bogus", ""} {
		t.Run(format, func(t *testing.T) {
			if NewLogger(format, "info", false) == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_VerboseForcesDebug(t *testing.T) {
	ctx := context.Background()

	quiet := NewLogger("json", "error", false)
	if quiet.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug enabled without verbose at error level")
	}

	verbose := NewLogger("json", "error", true)
	if !verbose.Enabled(ctx, slog.LevelDebug) {
		t.Error("verbose did not force debug level")
	}
}

// =============================================================================
// Table-Driven Tests: Output
// =============================================================================

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "info")

	logger.Info("pipeline_started",
		"mode", "async",
		"codec", "h264",
		"buffer_count", 4,
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "pipeline_started" {
		t.Errorf("msg = %v, want pipeline_started", entry["msg"])
	}
	if entry["mode"] != "async" {
		t.Errorf("mode = %v, want async", entry["mode"])
	}
	if got, ok := entry["buffer_count"].(float64); !ok || got != 4 {
		t.Errorf("buffer_count = %v, want 4", entry["buffer_count"])
	}
}

func TestLogger_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "info")

	logger.Info("frame_dropped", "reason", "no_slot")

	out := buf.String()
	if !strings.Contains(out, "msg=frame_dropped") {
		t.Errorf("text output missing message: %s", out)
	}
	if !strings.Contains(out, "reason=no_slot") {
		t.Errorf("text output missing field: %s", out)
	}
}

func TestLogger_UnknownFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "yaml", "info")

	logger.Info("pipeline_started")

	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("fallback output is not JSON: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "error")

	logger.Debug("decode_unit_submitted")
	logger.Info("pipeline_started")
	logger.Warn("frame_dropped")
	if buf.Len() != 0 {
		t.Errorf("sub-error lines emitted at error level: %s", buf.String())
	}

	logger.Error("pipeline_unhealthy")
	if !strings.Contains(buf.String(), "pipeline_unhealthy") {
		t.Error("error line not emitted at error level")
	}
}

func TestLogger_WithAttachesSessionFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "info").With("pipeline_id", "abc-123")

	logger.Info("pipeline_started")
	logger.Info("pipeline_stopped")

	for i, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"pipeline_id":"abc-123"`) {
			t.Errorf("line %d missing session field: %s", i, line)
		}
	}
}

// =============================================================================
// Table-Driven Tests: Default Logger
// =============================================================================

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	defer SetDefault(prev)

	logger := NewLogger("json", "warn", false)
	SetDefault(logger)

	if slog.Default() != logger {
		t.Error("SetDefault did not install the logger")
	}
}
