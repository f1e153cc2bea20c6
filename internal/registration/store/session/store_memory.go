package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"onboarding/internal/registration/flow"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

// Session binds a live flow controller to its HTTP-visible identity.
type Session struct {
	ID           id.SessionID
	Flow         *flow.Controller
	Device       string
	ClientIP     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Error Contract:
// - ErrNotFound when the session does not exist (or was already removed)
// - ErrConflict when creating a session whose ID is taken
//
// InMemorySessionStore keeps sessions in process memory. Controllers own
// timers and image handles, so sessions are never serialized.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[id.SessionID]*Session)}
}

func (s *InMemorySessionStore) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

// FindByID returns a copy; the controller pointer is shared.
func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	out := *session
	return &out, nil
}

// Touch records activity at. It never moves LastActivity backwards.
func (s *InMemorySessionStore) Touch(_ context.Context, sessionID id.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if at.After(session.LastActivity) {
		session.LastActivity = at
	}
	return nil
}

// Delete removes the session and returns it. Only the first caller succeeds.
func (s *InMemorySessionStore) Delete(_ context.Context, sessionID id.SessionID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	delete(s.sessions, sessionID)
	return session, nil
}

// ListIdle returns sessions whose last activity is before cutoff.
func (s *InMemorySessionStore) ListIdle(_ context.Context, cutoff time.Time) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, session := range s.sessions {
		if session.LastActivity.Before(cutoff) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemorySessionStore) ListAll(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemorySessionStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
