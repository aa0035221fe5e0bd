package source

import (
	"fmt"
)

// ResultCode is the outcome delivered to one-touch-play requesters.
type ResultCode int

// Result codes.
const (
	ResultSuccess             ResultCode = 0
	ResultTimeout             ResultCode = 1
	ResultSourceNotAvailable  ResultCode = 2
	ResultTargetNotAvailable  ResultCode = 3
	ResultException           ResultCode = 5
	ResultIncorrectMode       ResultCode = 6
	ResultCommunicationFailed ResultCode = 7
)

// String returns the snake_case name used in logs and MQTT payloads.
func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultTimeout:
		return "timeout"
	case ResultSourceNotAvailable:
		return "source_not_available"
	case ResultTargetNotAvailable:
		return "target_not_available"
	case ResultException:
		return "exception"
	case ResultIncorrectMode:
		return "incorrect_mode"
	case ResultCommunicationFailed:
		return "communication_failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ResultSink receives the outcome of a one-touch-play request.
//
// OnComplete is called on the service loop and must not block. An error
// means the requester has gone away; it is logged and otherwise ignored.
type ResultSink interface {
	OnComplete(result ResultCode) error
}

// ResultFunc adapts a function to ResultSink.
type ResultFunc func(result ResultCode) error

// OnComplete calls f(result).
func (f ResultFunc) OnComplete(result ResultCode) error {
	return f(result)
}

// invokeSink delivers result, logging and swallowing failures and panics.
func invokeSink(logger Logger, sink ResultSink, result ResultCode) {
	if sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("invoking result sink failed",
				"error", fmt.Errorf("%w: panic: %v", ErrSinkUnreachable, r),
				"result", result.String())
		}
	}()

	if err := sink.OnComplete(result); err != nil && logger != nil {
		logger.Error("invoking result sink failed",
			"error", fmt.Errorf("%w: %w", ErrSinkUnreachable, err),
			"result", result.String())
	}
}
