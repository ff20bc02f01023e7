package pipeline

import "errors"

var (
	// ErrConfiguration indicates the decoder could not be created or
	// configured. It is fatal for the session.
	ErrConfiguration = errors.New("pipeline: configuration failed")

	// ErrNotRunning is returned by operations that require a live session.
	ErrNotRunning = errors.New("pipeline: not running")

	// ErrUnhealthy indicates too many consecutive output failures. The
	// session is terminated when this threshold is crossed.
	ErrUnhealthy = errors.New("pipeline: consecutive output errors exceeded limit")

	// ErrNoSurface is returned by Start when no output surface is attached.
	ErrNoSurface = errors.New("pipeline: no output surface attached")
)
