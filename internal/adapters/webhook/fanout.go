// Package webhook delivers event envelopes to every active subscriber.
//
// One envelope produces one POST per subscriber. Attempts run concurrently,
// each under its own timeout, and a failed attempt never affects the others.
// There is no retry: a failure is logged and counted, then forgotten.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/okian/roster/internal/domain/event"
	"github.com/okian/roster/internal/domain/model"
	"github.com/okian/roster/pkg/logger"
	"github.com/okian/roster/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Default fan-out configuration.
const (
	DefaultTimeout   = 5000 * time.Millisecond
	defaultUserAgent = "roster-webhook/1"
	maxDrainBytes    = 64 << 10
)

// Header names set on every delivery.
const (
	HeaderEvent    = "X-Roster-Event"
	HeaderDelivery = "X-Roster-Delivery"
)

// Registry lists the subscribers that should receive the next envelope.
type Registry interface {
	ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error)
}

// Outcome is the settled result of one delivery attempt.
type Outcome struct {
	SubscriberID int64
	URL          string
	Status       int
	Duration     time.Duration
	Err          error
}

// OK reports whether the subscriber answered with a 2xx status.
func (o Outcome) OK() bool { return o.Err == nil }

// Label classifies the outcome for metrics.
func (o Outcome) Label() string {
	switch {
	case o.Err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(o.Err, ErrSubscriberTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(o.Err, ErrSubscriberRejected):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeUnreachable
	}
}

// Fanout posts envelopes to the subscribers returned by a Registry.
type Fanout struct {
	registry       Registry
	creds          Credentials
	client         *http.Client
	timeout        time.Duration
	maxConcurrency int
	userAgent      string
	logger         logger.Logger
}

// NewFanout builds a dispatcher. A nil Credentials sends no Authorization
// header.
func NewFanout(registry Registry, creds Credentials, opts ...Option) *Fanout {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16

	f := &Fanout{
		registry:  registry,
		creds:     creds,
		client:    &http.Client{Transport: transport},
		timeout:   DefaultTimeout,
		userAgent: defaultUserAgent,
		logger:    logger.Get().Named("webhook"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Timeout returns the per-attempt bound.
func (f *Fanout) Timeout() time.Duration { return f.timeout }

// Deliver sends env to every active subscriber and waits until each attempt
// has settled. The returned error is set only when nothing could be sent:
// the registry could not be read, the credential could not be resolved or
// the envelope could not be encoded.
func (f *Fanout) Deliver(ctx context.Context, env event.Envelope) ([]Outcome, error) {
	subs, err := f.registry.ActiveSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryRead, err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	token, err := f.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeEnvelope, err)
	}

	outcomes := make([]Outcome, len(subs))
	var g errgroup.Group
	if f.maxConcurrency > 0 {
		g.SetLimit(f.maxConcurrency)
	}
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = f.send(ctx, env, sub, token, body)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

// Dispatch is Deliver for callers that only care that delivery happened.
// Every failure is logged and counted; nothing is returned.
func (f *Fanout) Dispatch(ctx context.Context, env event.Envelope) {
	start := time.Now()
	outcomes, err := f.Deliver(ctx, env)
	metrics.RecordDispatchLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(err, ErrRegistryRead) {
			metrics.RecordRegistryError()
		}
		metrics.RecordErrorByComponent("webhook", "dispatch")
		f.logger.Error(ctx, "webhook dispatch aborted",
			logger.String("event", string(env.Kind)),
			logger.String("delivery", env.ID),
			logger.Error(err))
		return
	}

	metrics.UpdateActiveSubscribers(len(outcomes))
	if len(outcomes) == 0 {
		f.logger.Info(ctx, "no active webhooks to trigger",
			logger.String("event", string(env.Kind)))
		return
	}

	failed := 0
	for _, o := range outcomes {
		metrics.RecordDelivery(o.Label(), float64(o.Duration.Milliseconds()))
		if o.OK() {
			continue
		}
		failed++
		f.logger.Warn(ctx, "webhook delivery failed",
			logger.String("url", o.URL),
			logger.Int64("subscriber_id", o.SubscriberID),
			logger.Int("status", o.Status),
			logger.Duration("took", o.Duration),
			logger.Error(o.Err))
	}

	f.logger.Info(ctx, "webhooks triggered",
		logger.String("event", string(env.Kind)),
		logger.String("delivery", env.ID),
		logger.Int("subscribers", len(outcomes)),
		logger.Int("failed", failed))
}

func (f *Fanout) token(ctx context.Context) (string, error) {
	if f.creds == nil {
		return "", nil
	}
	return f.creds.Token(ctx)
}

func (f *Fanout) send(ctx context.Context, env event.Envelope, sub model.Subscriber, token string, body []byte) (out Outcome) {
	out = Outcome{SubscriberID: sub.ID, URL: sub.URL}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: panic: %v", ErrSubscriberUnreachable, r)
		}
		out.Duration = time.Since(start)
	}()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrSubscriberUnreachable, err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set(HeaderEvent, string(env.Kind))
	if env.ID != "" {
		req.Header.Set(HeaderDelivery, env.ID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		out.Err = classify(err)
		return out
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	out.Status = resp.StatusCode
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		out.Err = fmt.Errorf("%w: status %d", ErrSubscriberRejected, resp.StatusCode)
	}
	return out
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSubscriberTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrSubscriberTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrSubscriberUnreachable, err)
}
