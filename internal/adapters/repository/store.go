// Package repository persists students, their marks and exams, and the
// webhook subscriber registry.
package repository

import (
	"context"

	"github.com/okian/roster/internal/domain/model"
)

// StudentStore reads and writes student records. Marks and exams are loaded
// with the student and replaced wholesale on update.
type StudentStore interface {
	CreateStudent(ctx context.Context, s model.Student) (model.Student, error)
	// GetStudent returns ErrNotFound for an unknown id.
	GetStudent(ctx context.Context, id int64) (model.Student, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
	// UpdateStudent applies the asserted fields of p and returns the stored
	// result. Asserted marks or exams replace the stored lists.
	UpdateStudent(ctx context.Context, id int64, p model.Patch) (model.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
	// StudentIDByEmail and StudentIDByPhone return ErrNotFound when no
	// student holds the value.
	StudentIDByEmail(ctx context.Context, email string) (int64, error)
	StudentIDByPhone(ctx context.Context, phone string) (int64, error)
	CountStudents(ctx context.Context) (int, error)
}

// SubscriberStore manages webhook subscribers.
type SubscriberStore interface {
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	// ActiveSubscribers is read once per dispatch.
	ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error)
	GetSubscriber(ctx context.Context, id int64) (model.Subscriber, error)
	CreateSubscriber(ctx context.Context, url string, active bool) (model.Subscriber, error)
	// UpdateSubscriber changes the non-nil fields.
	UpdateSubscriber(ctx context.Context, id int64, url *string, active *bool) (model.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id int64) error
}

// Store is the full persistence surface.
type Store interface {
	StudentStore
	SubscriberStore
	Close() error
}
