package busmonitor

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("busmonitor: already started")

	// ErrClosed is returned when Start is called after Close.
	ErrClosed = errors.New("busmonitor: recorder closed")
)
