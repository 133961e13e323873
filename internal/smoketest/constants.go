package smoketest

import "time"

// Envelope kinds as they appear on the wire.
const (
	EventCreate = "CREATE"
	EventUpdate = "UPDATE"
)

// Run defaults.
const (
	DefaultStudents = 20
	DefaultSettle   = 15 * time.Second
	pollInterval    = 100 * time.Millisecond
	quietPeriod     = 500 * time.Millisecond
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)
