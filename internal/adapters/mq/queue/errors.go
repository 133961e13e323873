package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrFull   = errors.New("dispatch queue full")
	ErrClosed = errors.New("dispatch queue closed")
)
