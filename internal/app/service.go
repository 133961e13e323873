// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	eventqueue "github.com/okian/roster/internal/adapters/mq/queue"
	workerpool "github.com/okian/roster/internal/adapters/mq/worker"
	"github.com/okian/roster/internal/adapters/repository"
	"github.com/okian/roster/internal/app/notifier"
	"github.com/okian/roster/internal/domain/diff"
	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/internal/domain/model"
	"github.com/okian/roster/pkg/logger"
	"github.com/okian/roster/pkg/metrics"
)

// Default dispatch configuration.
const (
	defaultWorkerCount = 4
	defaultQueueSize   = 1024
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// requiredFields maps required scalar fields to their validation messages.
var requiredFields = []struct {
	field   string
	message string
}{
	{model.FieldName, "Name is required"},
	{model.FieldEmail, "Email is required"},
	{model.FieldPhone, "Phone number is required"},
	{model.FieldAddress, "Address is required"},
	{model.FieldDateOfBirth, "Date of birth is required"},
	{model.FieldUniversityName, "University name is required"},
}

// Service owns record mutations and the notifications they produce.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	dispatcher notifier.Dispatcher
	engine     *diff.Engine
	builder    *event.Builder

	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	trigger *notifier.Trigger

	workerCount int
	queueSize   int

	started bool
	stopped bool

	logger logger.Logger
}

// New constructs a Service over store. Mutations are accepted immediately;
// their envelopes are queued and delivered once Start runs the workers.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		engine:      diff.New(),
		builder:     event.NewBuilder(),
		logger:      logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = discard{}
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.dispatcher)
	s.trigger = notifier.NewTrigger(
		eventqueue.NewPublisher(s.queue),
		notifier.WithEngine(s.engine),
		notifier.WithBuilder(s.builder),
	)
	return s
}

// Start runs the dispatch workers. Workers outlive ctx and stop only in Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return errors.New("service already stopped")
	}

	s.pool.Start(context.WithoutCancel(ctx))
	s.started = true
	s.logger.Info(ctx, "roster service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize))

	if n, err := s.store.CountStudents(ctx); err == nil {
		metrics.UpdateStudentsTotal(n)
	}
	return nil
}

// Stop closes the dispatch queue and waits for queued envelopes to settle.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping roster service...")
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "roster service stopped", logger.Int64("dispatched", s.pool.Processed()))
	return err
}

// CreateStudent validates and stores a new student, then notifies
// subscribers.
func (s *Service) CreateStudent(ctx context.Context, in model.Student) (model.Student, error) {
	if err := validateNew(in); err != nil {
		return model.Student{}, err
	}
	in.Marks = normalizeMarks(in.Marks)
	if err := validateMarks(in.Marks); err != nil {
		return model.Student{}, err
	}
	if err := s.checkUnique(ctx, 0, in.Email, in.Phone); err != nil {
		return model.Student{}, err
	}

	created, err := s.store.CreateStudent(ctx, in)
	if err != nil {
		return model.Student{}, s.storeError(ctx, "create student", err)
	}
	metrics.RecordMutation("student", "create")
	s.refreshTotal(ctx)

	s.trigger.Created(context.WithoutCancel(ctx), created)
	return created, nil
}

// GetStudent returns one student.
func (s *Service) GetStudent(ctx context.Context, id int64) (model.Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return model.Student{}, s.storeError(ctx, "get student", err)
	}
	return st, nil
}

// ListStudents returns every student.
func (s *Service) ListStudents(ctx context.Context) ([]model.Student, error) {
	all, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "list students", err)
	}
	return all, nil
}

// UpdateStudent applies the asserted fields of p. Subscribers are notified
// only when an asserted field actually changed.
func (s *Service) UpdateStudent(ctx context.Context, id int64, p model.Patch) (model.Student, error) {
	before, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return model.Student{}, s.storeError(ctx, "load student", err)
	}
	if p.Empty() {
		return before, nil
	}

	if err := validatePatch(p); err != nil {
		return model.Student{}, err
	}
	if p.MarksSet {
		p.Marks = normalizeMarks(p.Marks)
		if err := validateMarks(p.Marks); err != nil {
			return model.Student{}, err
		}
	}
	if err := s.checkUnique(ctx, id, scalar(p, model.FieldEmail), scalar(p, model.FieldPhone)); err != nil {
		return model.Student{}, err
	}

	after, err := s.store.UpdateStudent(ctx, id, p)
	if err != nil {
		return model.Student{}, s.storeError(ctx, "update student", err)
	}
	metrics.RecordMutation("student", "update")

	s.trigger.Updated(context.WithoutCancel(ctx), before, after, diff.ScopeFor(p))
	return after, nil
}

// DeleteStudent removes a student. Subscribers are not notified.
func (s *Service) DeleteStudent(ctx context.Context, id int64) error {
	before, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return s.storeError(ctx, "load student", err)
	}
	if err := s.store.DeleteStudent(ctx, id); err != nil {
		return s.storeError(ctx, "delete student", err)
	}
	metrics.RecordMutation("student", "delete")
	s.refreshTotal(ctx)

	s.trigger.Deleted(ctx, before)
	return nil
}

// ListWebhooks returns every registered subscriber.
func (s *Service) ListWebhooks(ctx context.Context) ([]model.Subscriber, error) {
	subs, err := s.store.ListSubscribers(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "list webhooks", err)
	}
	return subs, nil
}

// CreateWebhook registers an active subscriber.
func (s *Service) CreateWebhook(ctx context.Context, rawURL string) (model.Subscriber, error) {
	if strings.TrimSpace(rawURL) == "" {
		return model.Subscriber{}, validationError([]string{"URL is required"})
	}
	if err := validateURL(rawURL); err != nil {
		return model.Subscriber{}, err
	}

	sub, err := s.store.CreateSubscriber(ctx, rawURL, true)
	if err != nil {
		return model.Subscriber{}, s.storeError(ctx, "create webhook", err)
	}
	metrics.RecordMutation("webhook", "create")
	s.logger.Info(ctx, "webhook registered", logger.Int64("id", sub.ID), logger.String("url", sub.URL))
	return sub, nil
}

// UpdateWebhook changes a subscriber's url and/or active flag.
func (s *Service) UpdateWebhook(ctx context.Context, id int64, rawURL *string, active *bool) (model.Subscriber, error) {
	if rawURL == nil && active == nil {
		return model.Subscriber{}, validationError([]string{"No fields to update"})
	}
	if rawURL != nil {
		if err := validateURL(*rawURL); err != nil {
			return model.Subscriber{}, err
		}
	}

	sub, err := s.store.UpdateSubscriber(ctx, id, rawURL, active)
	if err != nil {
		return model.Subscriber{}, s.storeError(ctx, "update webhook", err)
	}
	metrics.RecordMutation("webhook", "update")
	return sub, nil
}

// DeleteWebhook removes a subscriber.
func (s *Service) DeleteWebhook(ctx context.Context, id int64) error {
	if err := s.store.DeleteSubscriber(ctx, id); err != nil {
		return s.storeError(ctx, "delete webhook", err)
	}
	metrics.RecordMutation("webhook", "delete")
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"queueLength": s.queue.Len(ctx),
		"dispatched":  s.pool.Processed(),
	}

	if n, err := s.store.CountStudents(ctx); err == nil {
		stats["totalStudents"] = n
		metrics.UpdateStudentsTotal(n)
	}
	if subs, err := s.store.ActiveSubscribers(ctx); err == nil {
		stats["activeWebhooks"] = len(subs)
	}
	return stats
}

func (s *Service) checkUnique(ctx context.Context, self int64, email, phone string) error {
	if email != "" {
		id, err := s.store.StudentIDByEmail(ctx, email)
		switch {
		case err == nil && id != self:
			return fmt.Errorf("%w: Email %q already exists. Please use a different email address", ErrConflict, email)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return s.storeError(ctx, "check email", err)
		}
	}
	if phone != "" {
		id, err := s.store.StudentIDByPhone(ctx, phone)
		switch {
		case err == nil && id != self:
			return fmt.Errorf("%w: Phone number %q already exists. Please use a different phone number", ErrConflict, phone)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return s.storeError(ctx, "check phone", err)
		}
	}
	return nil
}

func (s *Service) refreshTotal(ctx context.Context) {
	if n, err := s.store.CountStudents(ctx); err == nil {
		metrics.UpdateStudentsTotal(n)
	}
}

// storeError translates repository errors into service kinds.
func (s *Service) storeError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		metrics.RecordErrorByComponent("service", "store")
		s.logger.Error(ctx, "store operation failed", logger.String("op", op), logger.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
}

func validateNew(in model.Student) error {
	values := in.Scalars()
	var problems []string
	for _, rf := range requiredFields {
		v := values[rf.field]
		if v == nil || strings.TrimSpace(*v) == "" {
			problems = append(problems, rf.message)
			continue
		}
		if rf.field == model.FieldEmail && !emailPattern.MatchString(*v) {
			problems = append(problems, "Please enter a valid email address")
		}
	}
	if len(problems) > 0 {
		return validationError(problems)
	}
	return nil
}

func validatePatch(p model.Patch) error {
	var problems []string
	for _, rf := range requiredFields {
		if !p.Has(rf.field) {
			continue
		}
		v := p.Scalars[rf.field]
		if v == nil || strings.TrimSpace(*v) == "" {
			problems = append(problems, rf.message)
			continue
		}
		if rf.field == model.FieldEmail && !emailPattern.MatchString(*v) {
			problems = append(problems, "Please enter a valid email address")
		}
	}
	if len(problems) > 0 {
		return validationError(problems)
	}
	return nil
}

func validateMarks(marks []model.Mark) error {
	seen := make(map[string]bool, len(marks))
	for _, m := range marks {
		subject := strings.TrimSpace(m.Subject)
		if subject == "" {
			return validationError([]string{"Every mark needs a subject"})
		}
		if seen[subject] {
			return validationError([]string{fmt.Sprintf("Subject %q is listed more than once", subject)})
		}
		seen[subject] = true
	}
	return nil
}

func normalizeMarks(marks []model.Mark) []model.Mark {
	out := make([]model.Mark, len(marks))
	for i, m := range marks {
		if m.MaxMarks == 0 {
			m.MaxMarks = model.DefaultMaxMarks
		}
		out[i] = m
	}
	return out
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationError([]string{"Invalid URL format"})
	}
	return nil
}

func scalar(p model.Patch, field string) string {
	if v := p.Scalars[field]; v != nil {
		return *v
	}
	return ""
}

// discard drops envelopes when no downstream dispatcher is configured.
type discard struct{}

func (discard) Dispatch(context.Context, event.Envelope) {}
