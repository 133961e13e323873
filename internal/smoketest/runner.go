package smoketest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/roster/pkg/logger"
)

// Run registers a local sink as a webhook, drives creates and updates
// against the service and verifies the deliveries it receives.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("smoke")
	if config.Students <= 0 {
		config.Students = DefaultStudents
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Settle <= 0 {
		config.Settle = DefaultSettle
	}

	log.Info(ctx, "starting roster smoke run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("students", config.Students),
		logger.Int("workers", config.Workers),
		logger.Duration("settle", config.Settle))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	if err := client.Do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	sink := NewSink(config.Token, config.Verbose)
	ln, err := net.Listen("tcp", config.SinkAddr)
	if err != nil {
		return stats, fmt.Errorf("failed to listen for deliveries: %w", err)
	}
	srv := &http.Server{Handler: sink, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	sinkURL := config.SinkURL
	if sinkURL == "" {
		sinkURL = "http://" + ln.Addr().String() + "/"
	}

	var hook webhook
	if err := client.Do(ctx, http.MethodPost, "/api/webhooks", map[string]string{"url": sinkURL}, &hook); err != nil {
		return stats, fmt.Errorf("webhook registration failed: %w", err)
	}
	defer func() {
		if err := client.Do(context.WithoutCancel(ctx), http.MethodDelete, "/api/webhooks/"+strconv.FormatInt(hook.ID, 10), nil, nil); err != nil {
			log.Warn(ctx, "failed to remove webhook", logger.Int64("id", hook.ID), logger.Error(err))
		}
	}()

	ids := createStudents(ctx, client, config, stats)
	defer deleteStudents(context.WithoutCancel(ctx), client, ids)

	waitCtx, cancel := context.WithTimeout(ctx, config.Settle)
	defer cancel()
	if !sink.WaitFor(waitCtx, EventCreate, len(ids)) {
		return finish(stats, sink), fmt.Errorf("%w: %d/%d CREATE envelopes", ErrMissingDelivery, sink.Count(EventCreate), len(ids))
	}

	updateStudents(ctx, client, config, ids, stats)
	if !sink.WaitFor(waitCtx, EventUpdate, stats.StudentsUpdated) {
		return finish(stats, sink), fmt.Errorf("%w: %d/%d UPDATE envelopes", ErrMissingDelivery, sink.Count(EventUpdate), stats.StudentsUpdated)
	}

	// The repeat update carries no change and must stay silent.
	if len(ids) > 0 {
		if err := updateEndDate(ctx, client, ids[0], endDate); err != nil {
			log.Warn(ctx, "repeat update failed", logger.Error(err))
		}
		time.Sleep(quietPeriod)
	}

	finish(stats, sink)
	if err := verify(sink, ids, stats); err != nil {
		return stats, err
	}
	displayFinalStats(ctx, stats)
	return stats, nil
}

const endDate = "2030-06-30"

func createStudents(ctx context.Context, client *HTTPClient, config *Config, stats *Stats) []int64 {
	var (
		mu     sync.Mutex
		ids    []int64
		failed int64
		wg     sync.WaitGroup
	)
	jobs := make(chan int, config.Workers*WorkerChannelMultiplier)
	run := uuid.NewString()[:8]

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				in := student{
					Name:           fmt.Sprintf("Smoke Student %d", n),
					Email:          fmt.Sprintf("smoke-%s-%d@example.com", run, n),
					Phone:          fmt.Sprintf("smoke-%s-%d", run, n),
					Address:        "1 Test Street",
					DateOfBirth:    "2000-01-01",
					UniversityName: "Smoke University",
					Marks:          []mark{{Subject: "Math", Marks: 50 + n%50, MaxMarks: 100}},
				}
				var out student
				if err := client.Do(ctx, http.MethodPost, "/api/students", in, &out); err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Get().Warn(ctx, "create failed", logger.Int("n", n), logger.Error(err))
					continue
				}
				mu.Lock()
				ids = append(ids, out.ID)
				mu.Unlock()
			}
		}()
	}
feed:
	for n := 0; n < config.Students; n++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- n:
		}
	}
	close(jobs)
	wg.Wait()

	stats.StudentsCreated = len(ids)
	stats.RequestsFailed += int(failed)
	return ids
}

func updateStudents(ctx context.Context, client *HTTPClient, config *Config, ids []int64, stats *Stats) {
	var (
		updated, failed int64
		wg              sync.WaitGroup
	)
	jobs := make(chan int64, config.Workers*WorkerChannelMultiplier)
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := updateEndDate(ctx, client, id, endDate); err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&updated, 1)
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	stats.StudentsUpdated = int(updated)
	stats.RequestsFailed += int(failed)
}

func updateEndDate(ctx context.Context, client *HTTPClient, id int64, date string) error {
	return client.Do(ctx, http.MethodPut, "/api/students/"+strconv.FormatInt(id, 10),
		map[string]string{"universityend_date": date}, nil)
}

func deleteStudents(ctx context.Context, client *HTTPClient, ids []int64) {
	for _, id := range ids {
		_ = client.Do(ctx, http.MethodDelete, "/api/students/"+strconv.FormatInt(id, 10), nil, nil)
	}
}

func finish(stats *Stats, sink *Sink) *Stats {
	stats.CreatesReceived = sink.Count(EventCreate)
	stats.UpdatesReceived = sink.Count(EventUpdate)
	stats.Unauthorized = sink.Unauthorized()
	stats.Duplicates = sink.Duplicates()
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	return stats
}

// verify checks each student saw exactly one CREATE followed by one UPDATE
// that reported only the end date.
func verify(sink *Sink, ids []int64, stats *Stats) error {
	var errs []error
	if stats.Duplicates > 0 {
		errs = append(errs, fmt.Errorf("%d repeated deliveries", stats.Duplicates))
	}
	if stats.Unauthorized > 0 {
		errs = append(errs, fmt.Errorf("%d deliveries with a wrong credential", stats.Unauthorized))
	}
	for _, id := range ids {
		got := sink.For(id)
		if len(got) != 2 {
			if len(got) > 2 {
				stats.UnexpectedUpdates += len(got) - 2
			}
			errs = append(errs, fmt.Errorf("student %d: %d envelopes", id, len(got)))
			continue
		}
		if got[0].Event != EventCreate || got[1].Event != EventUpdate {
			errs = append(errs, fmt.Errorf("student %d: order %s,%s", id, got[0].Event, got[1].Event))
			continue
		}
		if len(got[1].Changes) != 1 || got[1].Changes["universityend_date"] != endDate {
			errs = append(errs, fmt.Errorf("student %d: changes %v", id, got[1].Changes))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.Int("studentsCreated", stats.StudentsCreated),
		logger.Int("studentsUpdated", stats.StudentsUpdated),
		logger.Int("requestsFailed", stats.RequestsFailed),
		logger.Int("createsReceived", stats.CreatesReceived),
		logger.Int("updatesReceived", stats.UpdatesReceived),
		logger.Int("unauthorized", stats.Unauthorized),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("unexpectedUpdates", stats.UnexpectedUpdates),
		logger.String("duration", stats.Duration.String()))
}

func newTicker() *time.Ticker { return time.NewTicker(pollInterval) }
