package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestSampler(interval time.Duration) (*Sampler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "debug")
	return NewSampler(logger, interval), &buf
}

// =============================================================================
// Table-Driven Tests: Suppression Window
// =============================================================================

func TestSampler_FirstOccurrenceLogsImmediately(t *testing.T) {
	s, buf := newTestSampler(time.Hour)

	s.Log(slog.LevelWarn, "frame_dropped", "reason", "no_slot")

	if got := strings.Count(buf.String(), "frame_dropped"); got != 1 {
		t.Errorf("emitted %d lines, want 1", got)
	}
	if s.Total() != 1 {
		t.Errorf("Total() = %d, want 1", s.Total())
	}
	if s.Suppressed() != 0 {
		t.Errorf("Suppressed() = %d, want 0", s.Suppressed())
	}
}

func TestSampler_SuppressesWithinInterval(t *testing.T) {
	s, buf := newTestSampler(time.Hour)

	for i := 0; i < 10; i++ {
		s.Log(slog.LevelWarn, "frame_dropped")
	}

	if got := strings.Count(buf.String(), "frame_dropped"); got != 1 {
		t.Errorf("emitted %d lines, want 1", got)
	}
	if s.Total() != 10 {
		t.Errorf("Total() = %d, want 10", s.Total())
	}
	if s.Suppressed() != 9 {
		t.Errorf("Suppressed() = %d, want 9", s.Suppressed())
	}
}

func TestSampler_EmitsSuppressedCountAfterInterval(t *testing.T) {
	s, buf := newTestSampler(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		s.Log(slog.LevelWarn, "frame_dropped")
	}
	time.Sleep(20 * time.Millisecond)
	s.Log(slog.LevelWarn, "frame_dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("emitted %d lines, want 2", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("parse second line: %v", err)
	}
	if got, ok := entry["suppressed"].(float64); !ok || got != 4 {
		t.Errorf("suppressed field = %v, want 4", entry["suppressed"])
	}
	if s.Suppressed() != 0 {
		t.Errorf("Suppressed() = %d after emit, want 0", s.Suppressed())
	}
	if s.Total() != 6 {
		t.Errorf("Total() = %d, want 6", s.Total())
	}
}

func TestSampler_NoSuppressedFieldWhenNoneSwallowed(t *testing.T) {
	s, buf := newTestSampler(time.Millisecond)

	s.Log(slog.LevelWarn, "frame_dropped")
	time.Sleep(5 * time.Millisecond)
	s.Log(slog.LevelWarn, "frame_dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("emitted %d lines, want 2", len(lines))
	}
	if strings.Contains(lines[1], "suppressed") {
		t.Errorf("second line carries a suppressed field with nothing swallowed: %s", lines[1])
	}
}
