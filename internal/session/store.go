// Package session keeps the live table views and form sessions addressed by
// the HTTP API.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/model"
)

// Closer releases a session's resources, such as engine timers.
type Closer interface {
	Close()
}

// Entry is one live session.
type Entry[T Closer] struct {
	ID string
	// Owner is the id of the table or form the session was opened from.
	Owner     string
	Value     T
	CreatedAt time.Time
	LastSeen  time.Time
}

// Options configure a Store.
type Options struct {
	TTL         time.Duration
	MaxSessions int
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Store is an in-memory session store with idle expiry and a size cap. When
// full, the least recently used session is evicted.
type Store[T Closer] struct {
	kind    string
	ttl     time.Duration
	max     int
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry[T]
}

// NewStore creates a store for one kind of session. kind labels metrics and
// logs.
func NewStore[T Closer](kind string, opts Options) *Store[T] {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store[T]{
		kind:    kind,
		ttl:     opts.TTL,
		max:     opts.MaxSessions,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     time.Now,
		entries: make(map[string]*Entry[T]),
	}
}

// Create stores v under a new id.
func (s *Store[T]) Create(owner string, v T) string {
	now := s.now()
	entry := &Entry[T]{
		ID:        uuid.NewString(),
		Owner:     owner,
		Value:     v,
		CreatedAt: now,
		LastSeen:  now,
	}

	var evicted []*Entry[T]
	s.mu.Lock()
	for len(s.entries) >= s.max {
		victim := s.oldestLocked()
		delete(s.entries, victim.ID)
		evicted = append(evicted, victim)
	}
	s.entries[entry.ID] = entry
	n := len(s.entries)
	s.mu.Unlock()

	for _, e := range evicted {
		s.logger.Info("session evicted, store full",
			zap.String("kind", s.kind),
			zap.String("session_id", e.ID),
			zap.String("owner", e.Owner),
		)
		e.Value.Close()
	}
	s.report(n)
	return entry.ID
}

// Get returns the session and marks it used. Missing and expired sessions
// yield a SESSION_NOT_FOUND error.
func (s *Store[T]) Get(id string) (Entry[T], error) {
	now := s.now()
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok && now.Sub(entry.LastSeen) > s.ttl {
		delete(s.entries, id)
		n := len(s.entries)
		s.mu.Unlock()
		entry.Value.Close()
		s.report(n)
		return Entry[T]{}, model.NewSessionNotFoundError(id)
	}
	if !ok {
		s.mu.Unlock()
		return Entry[T]{}, model.NewSessionNotFoundError(id)
	}
	entry.LastSeen = now
	out := *entry
	s.mu.Unlock()
	return out, nil
}

// Delete closes and removes a session.
func (s *Store[T]) Delete(id string) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return model.NewSessionNotFoundError(id)
	}
	delete(s.entries, id)
	n := len(s.entries)
	s.mu.Unlock()

	entry.Value.Close()
	s.report(n)
	return nil
}

// Sweep closes and removes every expired session and returns how many were
// removed.
func (s *Store[T]) Sweep() int {
	now := s.now()
	var expired []*Entry[T]
	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.LastSeen) > s.ttl {
			delete(s.entries, id)
			expired = append(expired, e)
		}
	}
	n := len(s.entries)
	s.mu.Unlock()

	for _, e := range expired {
		e.Value.Close()
	}
	if len(expired) > 0 {
		s.logger.Debug("expired sessions removed", zap.String("kind", s.kind), zap.Int("count", len(expired)))
	}
	s.report(n)
	return len(expired)
}

// Len returns the number of live sessions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close closes and removes every session.
func (s *Store[T]) Close() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*Entry[T])
	s.mu.Unlock()

	for _, e := range entries {
		e.Value.Close()
	}
	s.report(0)
}

func (s *Store[T]) oldestLocked() *Entry[T] {
	var oldest *Entry[T]
	for _, e := range s.entries {
		if oldest == nil || e.LastSeen.Before(oldest.LastSeen) {
			oldest = e
		}
	}
	return oldest
}

func (s *Store[T]) report(n int) {
	if s.metrics != nil {
		s.metrics.SetActiveSessions(s.kind, float64(n))
	}
}
