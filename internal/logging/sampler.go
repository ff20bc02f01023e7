package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sampler rate-limits logging of recurring non-fatal events.
//
// Under sustained packet loss a pipeline can drop hundreds of frames per
// second; logging each drop would add more latency than the drops
// themselves. A Sampler logs the first occurrence immediately, then at most
// once per interval, attaching the number of suppressed occurrences.
type Sampler struct {
	logger   *slog.Logger
	interval time.Duration

	mu         sync.Mutex
	lastLogged time.Time
	suppressed atomic.Int64
	total      atomic.Int64
}

// NewSampler creates a sampler that emits at most one line per interval.
func NewSampler(logger *slog.Logger, interval time.Duration) *Sampler {
	return &Sampler{logger: logger, interval: interval}
}

// Log records one occurrence and emits it if the sampling window allows.
// args follow the slog key/value convention.
func (s *Sampler) Log(level slog.Level, msg string, args ...any) {
	s.total.Add(1)

	s.mu.Lock()
	now := time.Now()
	if !s.lastLogged.IsZero() && now.Sub(s.lastLogged) < s.interval {
		s.mu.Unlock()
		s.suppressed.Add(1)
		return
	}
	s.lastLogged = now
	suppressed := s.suppressed.Swap(0)
	s.mu.Unlock()

	if suppressed > 0 {
		args = append(args, "suppressed", suppressed)
	}
	s.logger.Log(context.Background(), level, msg, args...)
}

// Total returns the number of occurrences recorded, logged or not.
func (s *Sampler) Total() int64 {
	return s.total.Load()
}

// Suppressed returns occurrences swallowed since the last emitted line.
func (s *Sampler) Suppressed() int64 {
	return s.suppressed.Load()
}
