package service

import (
	"github.com/okian/roster/internal/app/notifier"
	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of dispatch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of envelopes awaiting dispatch.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDispatcher sets the downstream dispatcher the workers deliver through,
// normally the webhook fan-out.
func WithDispatcher(d notifier.Dispatcher) Option {
	return func(s *Service) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithDiffEngine sets the engine used to detect effective updates.
func WithDiffEngine(e *diff.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithEventBuilder sets the envelope builder.
func WithEventBuilder(b *event.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
