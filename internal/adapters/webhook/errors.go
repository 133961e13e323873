package webhook

import "errors"

// Delivery outcomes. Each is terminal for one attempt and only observable
// through logs and metrics.
var (
	ErrSubscriberUnreachable = errors.New("subscriber unreachable")
	ErrSubscriberTimeout     = errors.New("subscriber timeout")
	ErrSubscriberRejected    = errors.New("subscriber rejected delivery")
)

// Dispatch-level failures; the envelope is dropped for every subscriber.
var (
	ErrRegistryRead    = errors.New("list active subscribers failed")
	ErrCredentials     = errors.New("resolve webhook credential failed")
	ErrEncodeEnvelope  = errors.New("encode envelope failed")
	ErrEmptyCredential = errors.New("webhook credential is empty")
)
