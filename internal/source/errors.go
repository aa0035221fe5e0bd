package source

import "errors"

// Domain errors for the source package.
var (
	// ErrInvalidConfig is returned when a device configuration is incomplete
	// or inconsistent.
	ErrInvalidConfig = errors.New("source: invalid device config")

	// ErrNotEligible is returned when a device cannot start one-touch-play,
	// either because the unit has no valid physical address or because its
	// role can never be a source.
	ErrNotEligible = errors.New("source: device cannot become active source")

	// ErrSinkUnreachable is logged when a result sink fails or panics.
	ErrSinkUnreachable = errors.New("source: result sink unreachable")
)
