package engine

import "errors"

var (
	// ErrLockTimeout is returned when a trade could not acquire the
	// market lock in time. Retryable by the caller.
	ErrLockTimeout = errors.New("engine: timed out waiting for market lock, retry")

	// ErrInvalidTransferAmount is returned when a transfer amount <= 0.
	ErrInvalidTransferAmount = errors.New("engine: transfer amount must be positive")

	// ErrSelfTransfer is returned when sender and receiver are the same.
	ErrSelfTransfer = errors.New("engine: cannot send money to yourself")
)
