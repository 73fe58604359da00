package eventbus

import "errors"

var (
	// ErrBatchTooLarge is returned when the broker cannot accept a batch in
	// one call. Callers split the batch and retry the halves.
	ErrBatchTooLarge = errors.New("batch too large for broker")
	ErrUnknownDriver = errors.New("unknown broker driver")
	ErrClosed        = errors.New("event bus closed")
)
