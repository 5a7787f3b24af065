package history

import (
	"sync"
	"time"

	"smartalarm/internal/model"
)

// Store keeps a bounded in-memory ring of lifecycle events for the
// diagnostics API. Oldest entries are dropped once the limit is reached.
type Store struct {
	mu    sync.RWMutex
	buf   []model.AlarmEvent
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(ev model.AlarmEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, ev)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = ev
}

// List returns up to limit most recent events, oldest first. A zero limit
// returns everything.
func (s *Store) List(limit int) []model.AlarmEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.AlarmEvent, 0, limit)
	for i := len(s.buf) - limit; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.AlarmEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AlarmEvent, 0)
	for _, ev := range s.buf {
		if !ev.Timestamp.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
