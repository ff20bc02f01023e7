// Package presentation converts stream timestamps into display deadlines.
//
// A Timer owns a single (anchorSystemTime, anchorPts) pair that maps the
// stream's pts clock onto the system clock. The anchor is established
// lazily on the first frame after start (or after a vsync-mode toggle) and
// is re-established whenever a computed deadline has already passed, so the
// surface never sees a stale deadline and starts dropping frames.
package presentation

import (
	"sync"
	"time"
)

// Policy selects how decoded frames reach the surface.
type Policy int

const (
	// PolicyImmediate renders each frame as soon as it is decoded.
	// Lowest latency; the anchor is unused.
	PolicyImmediate Policy = iota

	// PolicyLocked renders at the computed deadline, trading roughly one
	// frame interval of latency for tear-free output.
	PolicyLocked
)

// String returns the policy name.
func (p Policy) String() string {
	if p == PolicyLocked {
		return "locked"
	}
	return "immediate"
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Timer computes presentation deadlines for decoded frames.
type Timer struct {
	mu sync.Mutex

	policy        Policy
	frameInterval time.Duration
	clock         Clock

	anchored   bool
	anchorTime time.Time
	anchorPTS  int64 // microseconds

	reanchors int64
}

// New creates a timer for the given policy and nominal frame rate.
func New(policy Policy, fps float64) *Timer {
	return NewWithClock(policy, fps, realClock{})
}

// NewWithClock creates a timer with an injected clock for testing.
func NewWithClock(policy Policy, fps float64, clock Clock) *Timer {
	if fps <= 0 {
		fps = 60
	}
	return &Timer{
		policy:        policy,
		frameInterval: time.Duration(float64(time.Second) / fps),
		clock:         clock,
	}
}

// Policy returns the configured presentation policy.
func (t *Timer) Policy() Policy {
	return t.policy
}

// TargetTime maps pts (microseconds) to a display deadline.
//
// scheduled=false means the frame should be rendered immediately (Immediate
// policy, or the anchor was just established by this very frame).
//
// Re-anchor rule: if the computed target is in the past, the anchor is
// moved so this frame lands half a frame interval in the future. Without
// that, a single clock hiccup would leave every subsequent deadline stale
// and the surface would drop frames indefinitely.
func (t *Timer) TargetTime(pts int64) (target time.Time, scheduled bool) {
	if t.policy == PolicyImmediate {
		return time.Time{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.anchored {
		t.anchorTime = now
		t.anchorPTS = pts
		t.anchored = true
		return time.Time{}, false
	}

	delta := time.Duration(pts-t.anchorPTS) * time.Microsecond
	target = t.anchorTime.Add(delta)

	if target.Before(now) {
		t.anchorTime = now.Add(t.frameInterval / 2).Add(-delta)
		t.reanchors++
		target = t.anchorTime.Add(delta)
	}
	return target, true
}

// Reset discards the anchor. Called at start and on any vsync-mode toggle.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.anchored = false
	t.mu.Unlock()
}

// Reanchors returns how many times the anchor was re-established due to a
// past deadline.
func (t *Timer) Reanchors() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reanchors
}

// FrameInterval returns the nominal frame interval.
func (t *Timer) FrameInterval() time.Duration {
	return t.frameInterval
}
