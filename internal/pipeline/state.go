package pipeline

// State represents the lifecycle state of a pipeline instance.
type State int

const (
	// StateCreated is the initial state before Configure.
	StateCreated State = iota

	// StateConfigured means a validated configuration is pending.
	StateConfigured

	// StateRunning means the decoder session is live.
	StateRunning

	// StateStopped means the session ended cleanly.
	StateStopped

	// StateFailed means the session ended with a terminal error.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true while the session is live.
func (s State) IsActive() bool {
	return s == StateRunning
}

// IsTerminal returns true once the session cannot process more frames.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}
