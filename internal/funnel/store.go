package funnel

import (
	"context"
	"sync"
	"time"
)

// Store persists sessions. Update serializes mutations of one session: fn runs
// against the latest state and the result is saved only when fn succeeds and the
// session validates. fn may run more than once.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store that forgets sessions idle for longer than ttl (0 keeps them).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(s.ID); ok {
		return ErrSessionExists
	}
	saved := s.Clone()
	saved.Revision = 1
	saved.UpdatedAt = m.now().UTC()
	m.sessions[s.ID] = saved
	s.Revision = saved.Revision
	s.UpdatedAt = saved.UpdatedAt
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.live(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Revision = current.Revision + 1
	next.UpdatedAt = m.now().UTC()
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(id); !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// live returns the session unless it expired. Caller holds mu.
func (m *MemoryStore) live(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl {
		delete(m.sessions, id)
		return nil, false
	}
	return s, true
}
