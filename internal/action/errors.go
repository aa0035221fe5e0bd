package action

import "errors"

// Domain errors for the action package.
var (
	// ErrLoopClosed is returned when posting to a loop that has been closed.
	ErrLoopClosed = errors.New("action: loop closed")

	// ErrOffLoop is the panic value raised when loop-confined state is
	// touched from outside the loop goroutine.
	ErrOffLoop = errors.New("action: called outside the service loop")

	// ErrDuplicateAction is returned when an action of the same kind is
	// already registered for the owner.
	ErrDuplicateAction = errors.New("action: duplicate action")
)
