package queue

import (
	"context"

	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/pkg/logger"
	"github.com/okian/roster/pkg/metrics"
)

// Publisher hands envelopes to a Queue. It satisfies the same Dispatch
// contract as a synchronous fan-out, so callers never block on subscribers.
type Publisher struct {
	queue  Queue
	logger logger.Logger
}

// NewPublisher creates a Publisher over q.
func NewPublisher(q Queue, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		queue:  q,
		logger: logger.Get().Named("publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch enqueues env. A rejected envelope is logged and counted, never
// returned.
func (p *Publisher) Dispatch(ctx context.Context, env event.Envelope) { //nolint:gocritic // hugeParam: envelopes travel by value
	if err := p.queue.Enqueue(ctx, env); err != nil {
		metrics.RecordQueueDropped()
		p.logger.Warn(ctx, "envelope dropped",
			logger.String("event", string(env.Kind)),
			logger.String("delivery", env.ID),
			logger.Int64("student_id", env.Data.ID),
			logger.Error(err))
	}
}
