package process

import "errors"

var (
	// ErrInvalidConfig is returned by New when the configuration is unusable.
	ErrInvalidConfig = errors.New("process: invalid config")

	// ErrAlreadyRunning is returned by Start on a running supervisor.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNotReady is returned by Start when the daemon never passed its
	// readiness probe.
	ErrNotReady = errors.New("process: daemon not ready")
)
