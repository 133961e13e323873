package webhook

import (
	"net/http"
	"time"

	"github.com/okian/roster/pkg/logger"
)

// Option configures a Fanout.
type Option func(*Fanout)

// WithTimeout bounds each delivery attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fanout) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the outbound client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fanout) {
		if client != nil {
			f.client = client
		}
	}
}

// WithMaxConcurrency bounds in-flight deliveries per envelope; 0 means no bound.
func WithMaxConcurrency(n int) Option {
	return func(f *Fanout) {
		if n >= 0 {
			f.maxConcurrency = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fanout) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fanout) {
		if l != nil {
			f.logger = l
		}
	}
}
