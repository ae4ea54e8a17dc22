package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/bookvoice/internal/metrics"
)

// DefaultSession is used by callers that do not name a session.
const DefaultSession = "default"

// Session is one reader's coordinator.
type Session struct {
	ID          string
	Coordinator *Coordinator
	CreatedAt   time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns when the session was last looked up.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Sessions is a thread-safe in-memory session registry with idle eviction.
// The default session is never evicted.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	factory  func() *Coordinator
	metrics  *metrics.Metrics
}

// NewSessions creates a registry that builds coordinators with factory.
func NewSessions(ttl time.Duration, factory func() *Coordinator, m *metrics.Metrics) *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		factory:  factory,
		metrics:  m,
	}
}

// Create starts a session with a fresh random id.
func (s *Sessions) Create() *Session {
	return s.GetOrCreate(uuid.NewString())
}

// Get returns the session for id, or nil.
func (s *Sessions) Get(id string) *Session {
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess != nil {
		sess.touch()
	}
	return sess
}

// GetOrCreate returns the session for id, creating it if needed. An empty id
// means DefaultSession.
func (s *Sessions) GetOrCreate(id string) *Session {
	if id == "" {
		id = DefaultSession
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		sess = &Session{
			ID:          id,
			Coordinator: s.factory(),
			CreatedAt:   now,
			lastUsed:    now,
		}
		s.sessions[id] = sess
		s.metrics.SetActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()

	sess.touch()
	return sess
}

// Delete removes a session and unloads its document.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	if ok {
		sess.Coordinator.Unload()
	}
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Sessions) Cleanup() int {
	now := time.Now()
	var evicted []*Session

	s.mu.Lock()
	for id, sess := range s.sessions {
		if id == DefaultSession {
			continue
		}
		if now.Sub(sess.LastUsed()) > s.ttl {
			delete(s.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	for _, sess := range evicted {
		sess.Coordinator.Unload()
	}
	return len(evicted)
}

// Run calls Cleanup every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
