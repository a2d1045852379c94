package session

import (
	"context"
	"sync"
	"time"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
// Services should check for this error using errors.Is(err, session.ErrNotFound).
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

// Store contract (implemented by InMemoryStore, PostgresStore and RedisStore):
// - Upsert enforces at most one session per (user, origin IP)
// - Return ErrNotFound when the requested entity does not exist
// - Return copies so callers cannot mutate stored state

type originKey struct {
	userID   id.UserID
	originIP string
}

// InMemoryStore holds sessions in process memory. Suitable for tests and
// single-instance deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
	byOrigin map[originKey]id.SessionID
}

// NewInMemory constructs an empty in-memory session store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[id.SessionID]*models.Session),
		byOrigin: make(map[originKey]id.SessionID),
	}
}

// Upsert stores the session, replacing any existing session for the same
// (user, origin IP) pair. The replaced session's ID is retired.
func (s *InMemoryStore) Upsert(ctx context.Context, session *models.Session) error {
	if session == nil {
		return dErrors.New(dErrors.CodeValidation, "session is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := originKey{userID: session.UserID, originIP: session.OriginIP}
	if existingID, ok := s.byOrigin[key]; ok && existingID != session.ID {
		delete(s.sessions, existingID)
	}
	copied := *session
	s.sessions[session.ID] = &copied
	s.byOrigin[key] = session.ID
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *InMemoryStore) FindByUserAndIP(ctx context.Context, userID id.UserID, originIP string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, ok := s.byOrigin[originKey{userID: userID, originIP: originIP}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.sessions[sessionID]
	return &copied, nil
}

// Update overwrites an existing session in place. Unlike Upsert it fails when
// the session is missing; used by the refresh flow which must not resurrect a
// deleted session.
func (s *InMemoryStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return dErrors.New(dErrors.CodeValidation, "session is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byOrigin, originKey{userID: session.UserID, originIP: session.OriginIP})
	delete(s.sessions, sessionID)
	return nil
}

// DeleteAllForUser removes every session belonging to the user and returns
// the number removed. Deleting zero sessions is not an error.
func (s *InMemoryStore) DeleteAllForUser(ctx context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for sid, session := range s.sessions {
		if session.UserID == userID {
			delete(s.byOrigin, originKey{userID: session.UserID, originIP: session.OriginIP})
			delete(s.sessions, sid)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteOlderThan removes sessions whose timestamp predates the cutoff and
// returns the number removed.
func (s *InMemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for sid, session := range s.sessions {
		if session.CreatedOn.Before(cutoff) {
			delete(s.byOrigin, originKey{userID: session.UserID, originIP: session.OriginIP})
			delete(s.sessions, sid)
			deleted++
		}
	}
	return deleted, nil
}

// Count reports the number of live sessions; feeds the sessions gauge.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
