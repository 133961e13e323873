package smoketest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/okian/roster/pkg/logger"
)

const (
	maxEnvelopeBytes = 1 << 20
	deliveryHeader   = "X-Roster-Delivery"
)

// Sink is an HTTP endpoint that records delivered envelopes.
type Sink struct {
	token   string
	verbose bool

	deliveries *seenSet

	mu           sync.Mutex
	byKind       map[string]int
	byStudent    map[int64][]Envelope
	unauthorized int
	duplicates   int
}

// NewSink returns a sink. A non-empty token must match the bearer header.
func NewSink(token string, verbose bool) *Sink {
	return &Sink{
		token:      token,
		verbose:    verbose,
		deliveries: newSeenSet(defaultSeenCapacity),
		byKind:     make(map[string]int),
		byStudent:  make(map[int64][]Envelope),
	}
}

// ServeHTTP implements http.Handler.
func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.token != "" && bearer(r) != s.token {
		s.mu.Lock()
		s.unauthorized++
		s.mu.Unlock()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var env Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)).Decode(&env); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	if id := r.Header.Get(deliveryHeader); id != "" && s.deliveries.SeenAndRecord(id) {
		s.mu.Lock()
		s.duplicates++
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mu.Lock()
	s.byKind[env.Event]++
	s.byStudent[env.Data.ID] = append(s.byStudent[env.Data.ID], env)
	s.mu.Unlock()

	if s.verbose {
		logger.Get().Info(r.Context(), "envelope received",
			logger.String("event", env.Event),
			logger.Int64("student_id", env.Data.ID),
			logger.String("delivery", r.Header.Get(deliveryHeader)),
			logger.Any("changes", env.Changes))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Count returns how many envelopes of kind were received.
func (s *Sink) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKind[kind]
}

// Unauthorized returns how many deliveries carried a wrong credential.
func (s *Sink) Unauthorized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unauthorized
}

// Duplicates returns how many deliveries repeated an already seen id.
func (s *Sink) Duplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}

// For returns the envelopes received for one student in arrival order.
func (s *Sink) For(id int64) []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.byStudent[id]...)
}

// WaitFor blocks until at least n envelopes of kind arrived or ctx ends.
func (s *Sink) WaitFor(ctx context.Context, kind string, n int) bool {
	ticker := newTicker()
	defer ticker.Stop()
	for {
		if s.Count(kind) >= n {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
