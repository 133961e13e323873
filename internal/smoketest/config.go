package smoketest

import "time"

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL  string        // Base URL of the service
	SinkAddr string        // Listen address of the local webhook sink
	SinkURL  string        // URL the service should call; derived from SinkAddr when empty
	Token    string        // Expected bearer token; empty accepts any
	Students int           // Number of students to create and update
	Workers  int           // Number of concurrent workers
	Timeout  time.Duration // HTTP request timeout
	Settle   time.Duration // How long to wait for deliveries
	Verbose  bool          // Log every received envelope
}

// Envelope is the subset of a delivered change envelope the sink inspects.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"data"`
	Changes map[string]any `json:"changes,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	StudentsCreated   int
	StudentsUpdated   int
	RequestsFailed    int
	CreatesReceived   int
	UpdatesReceived   int
	Unauthorized      int
	Duplicates        int
	UnexpectedUpdates int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
