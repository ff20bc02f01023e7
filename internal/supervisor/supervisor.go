package supervisor

import (
	"context"
	"log/slog"
	"time"
)

// Supervisor tracks restart budget and timing for one decode session.
type Supervisor struct {
	logger      *slog.Logger
	backoff     *Backoff
	maxRestarts int

	restarts     int
	sessionStart time.Time
}

// Config holds supervisor configuration.
type Config struct {
	Logger      *slog.Logger
	Backoff     BackoffConfig
	MaxRestarts int // 0 = never restart, -1 = unlimited
	Seed        int64
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		logger:      cfg.Logger,
		backoff:     NewBackoff(cfg.Seed, cfg.Backoff),
		maxRestarts: cfg.MaxRestarts,
	}
}

// SessionStarted marks the beginning of a session attempt.
func (s *Supervisor) SessionStarted() {
	s.sessionStart = time.Now()
}

// AllowRestart reports whether a failed session may be restarted.
func (s *Supervisor) AllowRestart() bool {
	if s.maxRestarts < 0 {
		return true
	}
	return s.restarts < s.maxRestarts
}

// NextDelay records a failure and returns how long to wait before the
// restart. A session that ran long enough resets the crash-loop counter
// first.
func (s *Supervisor) NextDelay() time.Duration {
	uptime := time.Since(s.sessionStart)
	if ShouldReset(uptime) {
		s.backoff.Reset()
	}
	s.restarts++
	delay := s.backoff.Next()
	if s.logger != nil {
		s.logger.Warn("session_restart_scheduled",
			"restart", s.restarts,
			"uptime", uptime.Round(time.Millisecond).String(),
			"delay", delay.Round(time.Millisecond).String(),
		)
	}
	return delay
}

// Wait sleeps for the given delay, returning early if the context ends.
func (s *Supervisor) Wait(ctx context.Context, delay time.Duration) error {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Restarts returns the number of restarts consumed.
func (s *Supervisor) Restarts() int {
	return s.restarts
}
