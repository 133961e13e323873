package worker

import "errors"

// ErrDrainTimeout is returned when workers do not finish before the
// shutdown deadline.
var ErrDrainTimeout = errors.New("worker drain timed out")
