package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboarding/internal/registration/flow"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemorySessionStore
	now   time.Time
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = New()
	s.now = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
}

func (s *SessionStoreSuite) newSession(lastActivity time.Time) *Session {
	return &Session{
		ID:           id.NewSessionID(),
		Flow:         flow.New(),
		CreatedAt:    lastActivity,
		LastActivity: lastActivity,
	}
}

func (s *SessionStoreSuite) TestSessionLookup() {
	ctx := context.Background()

	s.Run("returns stored session when found", func() {
		session := s.newSession(s.now)
		s.Require().NoError(s.store.Create(ctx, session))

		found, err := s.store.FindByID(ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(session.ID, found.ID)
		s.Same(session.Flow, found.Flow)
	})

	s.Run("returns ErrNotFound when session does not exist", func() {
		_, err := s.store.FindByID(ctx, id.NewSessionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate id conflicts", func() {
		session := s.newSession(s.now)
		s.Require().NoError(s.store.Create(ctx, session))
		s.ErrorIs(s.store.Create(ctx, session), sentinel.ErrConflict)
	})
}

func (s *SessionStoreSuite) TestTouchIsMonotonic() {
	ctx := context.Background()
	session := s.newSession(s.now)
	s.Require().NoError(s.store.Create(ctx, session))

	s.Require().NoError(s.store.Touch(ctx, session.ID, s.now.Add(time.Minute)))
	s.Require().NoError(s.store.Touch(ctx, session.ID, s.now))

	found, err := s.store.FindByID(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(s.now.Add(time.Minute), found.LastActivity)

	s.ErrorIs(s.store.Touch(ctx, id.NewSessionID(), s.now), sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestDeleteSucceedsOnce() {
	ctx := context.Background()
	session := s.newSession(s.now)
	s.Require().NoError(s.store.Create(ctx, session))

	deleted, err := s.store.Delete(ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(session.ID, deleted.ID)

	_, err = s.store.Delete(ctx, session.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Zero(s.store.Count(ctx))
}

func (s *SessionStoreSuite) TestListIdle() {
	ctx := context.Background()
	stale := s.newSession(s.now.Add(-time.Hour))
	fresh := s.newSession(s.now)
	s.Require().NoError(s.store.Create(ctx, stale))
	s.Require().NoError(s.store.Create(ctx, fresh))

	idle, err := s.store.ListIdle(ctx, s.now.Add(-30*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(idle, 1)
	s.Equal(stale.ID, idle[0].ID)

	all, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}
