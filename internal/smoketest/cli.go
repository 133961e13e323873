package smoketest

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/roster/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log lines to stdout and, when logFile is not "-", to a
// file as well. An empty logFile gets a timestamped name.
func SetupLogging(logFile string) error {
	if logFile == "-" {
		return logger.Init()
	}
	if logFile == "" {
		logFile = "smoke_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the smoke tool.
func ShowHelp() {
	os.Stdout.WriteString(`Roster Smoke Tool
=================

Registers a local webhook sink with a running roster service, creates and
updates students, and verifies that exactly one CREATE and one UPDATE
envelope arrive per student.

Usage:
  go run ./cmd/smoke [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:5000")
  -listen string
        Listen address of the webhook sink (default "127.0.0.1:0")
  -sink-url string
        URL the service uses to reach the sink (default: derived from -listen)
  -token string
        Expected bearer token; empty accepts any
  -students int
        Number of students to create and update (default 20)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long to wait for deliveries (default 15s)
  -serve
        Only run the sink and log every envelope until interrupted
  -log string
        Log file ("-" for stdout only; default: smoke_log_TIMESTAMP.log)
  -verbose
        Log every received envelope
  -help
        Show this help message

Examples:
  # Verify deliveries against a local service
  go run ./cmd/smoke -token integration-token

  # Run a standalone receiver for manual testing
  go run ./cmd/smoke -serve -listen :9000 -log -
`)
}
