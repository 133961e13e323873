// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors must be wrapped with this package's sentinel kinds.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file holding students and webhooks.
	DBPath string `koanf:"db_path"`

	// DBBusyTimeoutMS sets the SQLite busy timeout.
	DBBusyTimeoutMS int `koanf:"db_busy_timeout_ms"`

	// WebhookTimeoutMS bounds each outbound webhook delivery.
	WebhookTimeoutMS int `koanf:"webhook_timeout_ms"`

	// WebhookToken is the static bearer credential sent to subscribers.
	WebhookToken string `koanf:"webhook_token"`

	// WebhookTokenFile, when set, is re-read on every dispatch so the
	// credential can rotate without a restart. Takes precedence over WebhookToken.
	WebhookTokenFile string `koanf:"webhook_token_file"`

	// WebhookSigningSecret, when set, mints a short-lived HS256 token per
	// dispatch instead of sending a static one.
	WebhookSigningSecret string `koanf:"webhook_signing_secret"`

	// WebhookTokenTTLS is the lifetime of minted tokens in seconds.
	WebhookTokenTTLS int `koanf:"webhook_token_ttl_s"`

	// WebhookMaxConcurrency bounds in-flight deliveries per envelope; 0 means unbounded.
	WebhookMaxConcurrency int `koanf:"webhook_max_concurrency"`

	// DispatchQueueSize bounds envelopes waiting for a dispatch worker.
	DispatchQueueSize int `koanf:"dispatch_queue_size"`

	// DispatchWorkers sets the number of dispatch workers.
	DispatchWorkers int `koanf:"dispatch_workers"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":5000",
		DBPath:                "roster.db",
		DBBusyTimeoutMS:       5000,
		WebhookTimeoutMS:      5000,
		WebhookTokenTTLS:      3600,
		WebhookMaxConcurrency: 0,
		DispatchQueueSize:     1024,
		DispatchWorkers:       4,
	}
}

// WebhookTimeout returns the per-delivery timeout as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutMS) * time.Millisecond
}

// WebhookTokenTTL returns the minted token lifetime as a duration.
func (c *Config) WebhookTokenTTL() time.Duration {
	return time.Duration(c.WebhookTokenTTLS) * time.Second
}

// DBBusyTimeout returns the SQLite busy timeout as a duration.
func (c *Config) DBBusyTimeout() time.Duration {
	return time.Duration(c.DBBusyTimeoutMS) * time.Millisecond
}
