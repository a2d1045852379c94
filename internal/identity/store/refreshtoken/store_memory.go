// Package refreshtoken persists the refresh token rotation lineage.
package refreshtoken

import (
	"context"
	"sync"
	"time"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
// Services should check for this error using errors.Is(err, refreshtoken.ErrNotFound).
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
//
// InMemoryStore keeps the initial implementation lightweight and testable.
// The mutex doubles as the serialization point for the refresh race: two
// requests racing to rotate the same token pass through Execute one at a
// time, so exactly one succeeds and the other observes the token as already
// revoked-with-replacement.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.RefreshToken
}

// NewInMemory constructs an empty in-memory refresh token store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.RefreshToken)}
}

func (s *InMemoryStore) Create(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.tokens[token.Token] = &copied
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tokens[token]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, ErrNotFound
}

// Exists probes for a token's presence; used for collision checking during
// token generation.
func (s *InMemoryStore) Exists(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok, nil
}

// Update persists revocation metadata stamped onto an existing token.
func (s *InMemoryStore) Update(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.Token]; !ok {
		return ErrNotFound
	}
	copied := *token
	s.tokens[token.Token] = &copied
	return nil
}

// Execute runs validate and, when it passes, mutate on the stored record
// inside the store's critical section. The (possibly stale) record is
// returned even when validation fails so callers can inspect revocation
// state for replay detection.
func (s *InMemoryStore) Execute(
	_ context.Context,
	token string,
	validate func(*models.RefreshToken) error,
	mutate func(*models.RefreshToken),
) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	if err := validate(record); err != nil {
		copied := *record
		return &copied, err
	}
	mutate(record)
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]*models.RefreshToken, 0)
	for _, t := range s.tokens {
		if t.UserID == userID {
			copied := *t
			tokens = append(tokens, &copied)
		}
	}
	return tokens, nil
}

// DeleteInactiveBefore removes tokens that are inactive (revoked or expired)
// and were created before the cutoff. Live tokens are never touched, so the
// sweep is safe to run concurrently with sign-ins.
func (s *InMemoryStore) DeleteInactiveBefore(_ context.Context, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, t := range s.tokens {
		if t.IsActive(now) {
			continue
		}
		if t.CreatedOn.After(cutoff) {
			continue
		}
		delete(s.tokens, key)
		deleted++
	}
	return deleted, nil
}

// DeleteInactiveForUser removes a single user's inactive tokens past the
// cutoff.
func (s *InMemoryStore) DeleteInactiveForUser(_ context.Context, userID id.UserID, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, t := range s.tokens {
		if t.UserID != userID {
			continue
		}
		if t.IsActive(now) {
			continue
		}
		if t.CreatedOn.After(cutoff) {
			continue
		}
		delete(s.tokens, key)
		deleted++
	}
	return deleted, nil
}
