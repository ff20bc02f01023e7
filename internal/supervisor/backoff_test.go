package supervisor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/randomizedcoder/go-decode-pipeline/internal/logging"
)

// =============================================================================
// Table-Driven Tests: DefaultBackoffConfig
// =============================================================================

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.Initial != 250*time.Millisecond {
		t.Errorf("Initial = %v, want 250ms", cfg.Initial)
	}
	if cfg.Max != 5*time.Second {
		t.Errorf("Max = %v, want 5s", cfg.Max)
	}
	if cfg.Multiplier != 1.7 {
		t.Errorf("Multiplier = %v, want 1.7", cfg.Multiplier)
	}
	if cfg.JitterPct != 0.4 {
		t.Errorf("JitterPct = %v, want 0.4", cfg.JitterPct)
	}
}

// =============================================================================
// Table-Driven Tests: Backoff growth
// =============================================================================

func TestBackoff_GrowsExponentially(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.JitterPct = 0 // deterministic
	b := NewBackoff(1, cfg)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 250 * time.Millisecond},
		{1, 425 * time.Millisecond},
		{2, 722 * time.Millisecond}, // 250ms * 1.7^2 = 722.5ms
	}

	for _, tc := range tests {
		got := b.Next()
		// Allow sub-millisecond float truncation.
		if diff := got - tc.expected; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want ~%v", tc.attempt, got, tc.expected)
		}
	}
	if b.Attempts() != 3 {
		t.Errorf("Attempts = %d, want 3", b.Attempts())
	}
}

func TestBackoff_CapsAtMax(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.JitterPct = 0
	b := NewBackoff(1, cfg)

	for i := 0; i < 20; i++ {
		b.Next()
	}
	if got := b.Calculate(); got != cfg.Max {
		t.Errorf("delay after 20 attempts = %v, want cap %v", got, cfg.Max)
	}
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := DefaultBackoffConfig()
	b := NewBackoff(42, cfg)

	// With ±20% jitter the first delay stays within [200ms, 300ms].
	for i := 0; i < 100; i++ {
		got := b.Calculate()
		if got < 200*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("jittered delay %v outside [200ms, 300ms]", got)
		}
	}
}

func TestBackoff_DeterministicWithSeed(t *testing.T) {
	a := NewBackoff(7, DefaultBackoffConfig())
	b := NewBackoff(7, DefaultBackoffConfig())

	for i := 0; i < 5; i++ {
		if da, db := a.Next(), b.Next(); da != db {
			t.Fatalf("attempt %d: same seed diverged: %v vs %v", i, da, db)
		}
	}
}

func TestBackoff_Reset(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.JitterPct = 0
	b := NewBackoff(1, cfg)

	b.Next()
	b.Next()
	b.Reset()

	if b.Attempts() != 0 {
		t.Errorf("Attempts = %d after Reset, want 0", b.Attempts())
	}
	if got := b.Calculate(); got != cfg.Initial {
		t.Errorf("delay after Reset = %v, want %v", got, cfg.Initial)
	}
}

// =============================================================================
// Table-Driven Tests: ShouldReset
// =============================================================================

func TestShouldReset(t *testing.T) {
	tests := []struct {
		name     string
		uptime   time.Duration
		expected bool
	}{
		{"instant crash", 0, false},
		{"short session", 5 * time.Second, false},
		{"just under threshold", BackoffResetThreshold - time.Second, false},
		{"at threshold", BackoffResetThreshold, true},
		{"long healthy session", time.Hour, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldReset(tc.uptime); got != tc.expected {
				t.Errorf("ShouldReset(%v) = %v, want %v", tc.uptime, got, tc.expected)
			}
		})
	}
}

// =============================================================================
// Table-Driven Tests: Supervisor restart budget
// =============================================================================

func newTestSupervisor(maxRestarts int) *Supervisor {
	var buf bytes.Buffer
	return New(Config{
		Logger:      logging.NewLoggerWithWriter(&buf, "json", "info"),
		Backoff:     DefaultBackoffConfig(),
		MaxRestarts: maxRestarts,
		Seed:        1,
	})
}

func TestSupervisor_RestartBudget(t *testing.T) {
	tests := []struct {
		name        string
		maxRestarts int
		attempts    int
		allowed     int
	}{
		{"never restart", 0, 3, 0},
		{"three restarts", 3, 5, 3},
		{"unlimited", -1, 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSupervisor(tc.maxRestarts)
			s.SessionStarted()

			allowed := 0
			for i := 0; i < tc.attempts; i++ {
				if !s.AllowRestart() {
					break
				}
				allowed++
				s.NextDelay()
				s.SessionStarted()
			}
			if allowed != tc.allowed {
				t.Errorf("allowed %d restarts, want %d", allowed, tc.allowed)
			}
		})
	}
}

func TestSupervisor_NextDelayIncrementsRestarts(t *testing.T) {
	s := newTestSupervisor(-1)
	s.SessionStarted()

	if s.Restarts() != 0 {
		t.Fatalf("Restarts = %d before any failure", s.Restarts())
	}
	d1 := s.NextDelay()
	d2 := s.NextDelay()
	if s.Restarts() != 2 {
		t.Errorf("Restarts = %d, want 2", s.Restarts())
	}
	// Back-to-back failures grow the delay (bounded jitter cannot cancel
	// a 1.7x step).
	if d2 <= d1 {
		t.Errorf("delay did not grow: %v then %v", d1, d2)
	}
}

func TestSupervisor_LongUptimeResetsBackoff(t *testing.T) {
	s := newTestSupervisor(-1)

	s.SessionStarted()
	s.NextDelay()
	s.NextDelay()
	attemptsBefore := s.backoff.Attempts()
	if attemptsBefore < 2 {
		t.Fatalf("Attempts = %d, want >= 2", attemptsBefore)
	}

	// A session that ran past the threshold wipes the crash-loop history.
	s.sessionStart = time.Now().Add(-BackoffResetThreshold - time.Second)
	s.NextDelay()
	if got := s.backoff.Attempts(); got != 1 {
		t.Errorf("Attempts = %d after healthy session, want 1", got)
	}
}

func TestSupervisor_WaitHonorsContext(t *testing.T) {
	s := newTestSupervisor(-1)

	// Completed wait.
	if err := s.Wait(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Wait: %v", err)
	}

	// Cancelled wait returns promptly with the context error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := s.Wait(ctx, 10*time.Second)
	if err == nil {
		t.Error("Wait ignored cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait blocked past cancellation")
	}
}
