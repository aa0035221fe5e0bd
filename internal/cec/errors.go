package cec

import "errors"

// Domain errors for the CEC transport package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the adapter.
	ErrNotConnected = errors.New("cec: not connected to adapter")

	// ErrConnectionFailed is returned when the connection to the adapter fails.
	ErrConnectionFailed = errors.New("cec: connection to adapter failed")

	// ErrInvalidPhysicalAddress is returned when a physical address string
	// cannot be parsed.
	ErrInvalidPhysicalAddress = errors.New("cec: invalid physical address")

	// ErrInvalidLogicalAddress is returned when a logical address is out of range.
	ErrInvalidLogicalAddress = errors.New("cec: invalid logical address")

	// ErrInvalidMessage is returned when a received frame is malformed
	// (too short, wrong parameter length, or wrong addressing mode).
	ErrInvalidMessage = errors.New("cec: invalid message")

	// ErrSendFailed is returned when sending a frame to the adapter fails.
	ErrSendFailed = errors.New("cec: send failed")

	// ErrProtocolDesync is returned when the adapter stream cannot be framed
	// any more and the connection has to be re-established.
	ErrProtocolDesync = errors.New("cec: protocol desync")
)
