// Package notifier decides which record mutations reach subscribers.
//
// A create always notifies. An update notifies only when the asserted fields
// actually changed. A delete never notifies.
package notifier

import (
	"context"

	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/internal/domain/model"
	"github.com/okian/roster/pkg/logger"
	"github.com/okian/roster/pkg/metrics"
)

// Dispatcher delivers an envelope. Implementations absorb every failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, env event.Envelope)
}

// Trigger turns mutations into envelopes for a Dispatcher.
type Trigger struct {
	dispatcher Dispatcher
	engine     *diff.Engine
	builder    *event.Builder
	logger     logger.Logger
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithEngine sets the diff engine.
func WithEngine(e *diff.Engine) Option {
	return func(t *Trigger) {
		if e != nil {
			t.engine = e
		}
	}
}

// WithBuilder sets the envelope builder.
func WithBuilder(b *event.Builder) Option {
	return func(t *Trigger) {
		if b != nil {
			t.builder = b
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trigger) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTrigger creates a Trigger dispatching through d.
func NewTrigger(d Dispatcher, opts ...Option) *Trigger {
	t := &Trigger{
		dispatcher: d,
		engine:     diff.New(),
		builder:    event.NewBuilder(),
		logger:     logger.Get().Named("notifier"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Created notifies subscribers of a new record.
func (t *Trigger) Created(ctx context.Context, after model.Student) {
	env := t.builder.Build(event.Create, after, diff.Diff{})
	metrics.RecordNotificationTriggered(string(event.Create))
	t.logger.Debug(ctx, "student created, notifying",
		logger.Int64("student_id", after.ID),
		logger.String("delivery", env.ID))
	t.dispatcher.Dispatch(ctx, env)
}

// Updated notifies subscribers when the asserted part of the record changed.
// It reports whether an envelope was dispatched.
func (t *Trigger) Updated(ctx context.Context, before, after model.Student, scope diff.Scope) bool {
	d := t.engine.Compute(before, after, scope)
	if d.Empty() {
		metrics.RecordNotificationSuppressed()
		t.logger.Debug(ctx, "no effective change, notification suppressed",
			logger.Int64("student_id", after.ID))
		return false
	}

	env := t.builder.Build(event.Update, after, d)
	metrics.RecordNotificationTriggered(string(event.Update))
	t.logger.Debug(ctx, "student updated, notifying",
		logger.Int64("student_id", after.ID),
		logger.String("delivery", env.ID),
		logger.Int("changed_scalars", len(d.Scalars)),
		logger.Int("changed_marks", len(d.Scores)),
		logger.Int("changed_exams", len(d.Sessions)))
	t.dispatcher.Dispatch(ctx, env)
	return true
}

// Deleted does not notify subscribers.
func (t *Trigger) Deleted(ctx context.Context, before model.Student) {
	t.logger.Debug(ctx, "student deleted, no notification sent",
		logger.Int64("student_id", before.ID))
}
