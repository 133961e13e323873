// Package event assembles the envelopes sent to subscribers.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/model"
)

// TimestampFormat is ISO-8601 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Kind is the mutation that produced an envelope.
type Kind string

// Envelope kinds.
const (
	Create Kind = "CREATE"
	Update Kind = "UPDATE"
)

// Envelope is the immutable payload delivered to every subscriber.
type Envelope struct {
	// ID identifies the envelope in delivery headers and logs; it is not
	// part of the JSON body.
	ID        string
	Kind      Kind
	Timestamp time.Time
	Data      model.Student
	Changes   *diff.Diff
}

type wireEnvelope struct {
	Event     Kind          `json:"event"`
	Timestamp string        `json:"timestamp"`
	Data      model.Student `json:"data"`
	Changes   *diff.Diff    `json:"changes,omitempty"`
}

// MarshalJSON renders {"event","timestamp","data","changes"?}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Event:     e.Kind,
		Timestamp: e.Timestamp.UTC().Format(TimestampFormat),
		Data:      e.Data,
		Changes:   e.Changes,
	})
}

// Builder creates envelopes.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder returns a Builder stamping envelopes with the current UTC time.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles an envelope. CREATE envelopes never carry changes; UPDATE
// envelopes carry d only when it is non-empty. The snapshot is deep-copied.
func (b *Builder) Build(kind Kind, snapshot model.Student, d diff.Diff) Envelope {
	env := Envelope{
		ID:        b.newID(),
		Kind:      kind,
		Timestamp: b.now().UTC(),
		Data:      snapshot.Clone(),
	}
	if kind == Update && !d.Empty() {
		env.Changes = &d
	}
	return env
}
