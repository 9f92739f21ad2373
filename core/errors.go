package core

import (
	"errors"
)

// Exit codes recorded on transactions. Application handlers may define their
// own codes through ExitCoder.
const (
	ExitOK                = 0
	ExitHandlerFailed     = 1
	ExitInsufficientValue = 102
	ExitAccountNotFound   = 103
	ExitUnknownOp         = 130
)

var (
	// ErrInsufficientValue means the inbound value cannot pay for the
	// transaction's fees, reservations and sends.
	ErrInsufficientValue = errors.New("insufficient value")

	// ErrAccountNotFound means a message reached an address with no actor
	// and no valid StateInit.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnknownOp is returned by handlers for bodies they do not accept.
	ErrUnknownOp = errors.New("unknown op")

	// ErrUnknownMethod is returned by getters for unsupported methods.
	ErrUnknownMethod = errors.New("unknown get-method")

	// ErrNoGetter means the actor exposes no get-methods.
	ErrNoGetter = errors.New("actor has no get-methods")

	// ErrUnknownTemplate means no factory is registered for a template.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrSystemStopped is returned once Shutdown has been called.
	ErrSystemStopped = errors.New("actor system is stopped")

	// ErrMultipleRemaining means a handler queued more than one
	// SendRemaining message.
	ErrMultipleRemaining = errors.New("more than one send-remaining message")
)

// ExitCoder is implemented by errors that map to a specific exit code.
type ExitCoder interface {
	ExitCode() int
}

// ExitCodeOf maps an error returned by a handler or the runtime to the exit
// code recorded on the transaction.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	switch {
	case errors.Is(err, ErrInsufficientValue):
		return ExitInsufficientValue
	case errors.Is(err, ErrAccountNotFound):
		return ExitAccountNotFound
	case errors.Is(err, ErrUnknownOp):
		return ExitUnknownOp
	default:
		return ExitHandlerFailed
	}
}
