package bridge

import "errors"

var (
	// ErrInvalidOptions is returned by New when a required collaborator is missing.
	ErrInvalidOptions = errors.New("bridge: invalid options")

	// ErrUnknownCommand is returned for command names the bridge does not handle.
	ErrUnknownCommand = errors.New("bridge: unknown command")
)
