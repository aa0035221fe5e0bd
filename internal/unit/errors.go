package unit

import "errors"

// Domain errors for the unit package.
var (
	// ErrInvalidConfig is returned when the unit configuration is inconsistent.
	ErrInvalidConfig = errors.New("unit: invalid config")

	// ErrUnknownDevice is returned when a device ID is not hosted by the unit.
	ErrUnknownDevice = errors.New("unit: unknown device")

	// ErrOutboxFull is reported to observers when a message is dropped
	// because the sender cannot keep up.
	ErrOutboxFull = errors.New("unit: outbox full")
)
