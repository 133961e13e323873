// Package queue holds envelopes between a committed mutation and their
// dispatch.
//
// The queue is bounded and in-memory: enqueue never blocks the request path,
// and an envelope that does not fit is dropped.
package queue

import (
	"context"
	"sync"

	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an envelope. It returns ErrFull or ErrClosed when the
	// envelope was not accepted.
	Enqueue(ctx context.Context, env event.Envelope) error

	// Dequeue returns a channel that yields envelopes until the queue is
	// closed and drained.
	Dequeue(ctx context.Context) <-chan event.Envelope

	// Len returns the current number of queued envelopes.
	Len(ctx context.Context) int

	// Close stops accepting envelopes. Envelopes already queued are still
	// delivered to consumers.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	envelopes chan event.Envelope
	capacity  int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.envelopes = make(chan event.Envelope, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds an envelope to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, env event.Envelope) error { //nolint:gocritic // hugeParam: envelopes travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.envelopes <- env:
		metrics.UpdateQueueSize(len(q.envelopes))
		return nil
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the consumer side of the queue. Consumers share one
// channel, so each envelope is received exactly once.
func (q *InMemoryQueue) Dequeue(context.Context) <-chan event.Envelope {
	return q.envelopes
}

// Len returns the current number of queued envelopes.
func (q *InMemoryQueue) Len(context.Context) int {
	size := len(q.envelopes)
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.envelopes)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
