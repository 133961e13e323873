package smoketest

import "errors"

// Sentinel errors for smoke runs.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrMissingDelivery  = errors.New("missing delivery")
	ErrVerification     = errors.New("verification failed")
)
