package smoketest

import "sync"

// defaultSeenCapacity bounds how many delivery ids a sink remembers.
const defaultSeenCapacity = 50000

// seenSet remembers delivery ids so a repeated delivery can be detected.
// Once full, the oldest id is forgotten first.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	ring  []string
	next  int
	limit int
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = defaultSeenCapacity
	}
	return &seenSet{
		ids:   make(map[string]struct{}, limit),
		ring:  make([]string, 0, limit),
		limit: limit,
	}
}

// SeenAndRecord reports whether id was already recorded and records it if not.
func (s *seenSet) SeenAndRecord(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return true
	}
	if len(s.ring) < s.limit {
		s.ring = append(s.ring, id)
	} else {
		delete(s.ids, s.ring[s.next])
		s.ring[s.next] = id
		s.next = (s.next + 1) % s.limit
	}
	s.ids[id] = struct{}{}
	return false
}

// Len returns how many ids are remembered.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
