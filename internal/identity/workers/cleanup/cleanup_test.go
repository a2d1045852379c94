package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portico/internal/identity/models"
	"portico/internal/identity/store/refreshtoken"
	"portico/internal/identity/store/session"
	id "portico/pkg/domain"
)

type failingSweeper struct{}

func (failingSweeper) DeleteOlderThan(context.Context, time.Time) (int, error) {
	return 0, errors.New("sweep failed")
}

func (failingSweeper) Count(context.Context) (int, error) { return 0, nil }

func TestRunOnceSweepsTokensAndSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	userID := id.NewUserID()

	tokens := refreshtoken.NewInMemory()
	// Revoked long ago: prunable.
	stale, err := models.NewRefreshToken("stale", userID, "203.0.113.7", now.Add(-60*24*time.Hour), now.Add(-53*24*time.Hour))
	require.NoError(t, err)
	revokedAt := now.Add(-59 * 24 * time.Hour)
	stale.RevokedOn = &revokedAt
	require.NoError(t, tokens.Create(ctx, stale))
	// Active: kept.
	live, err := models.NewRefreshToken("live", userID, "203.0.113.7", now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, tokens.Create(ctx, live))

	sessions := session.NewInMemory()
	old, err := models.NewSession(id.NewSessionID(), userID, "a", "r", "203.0.113.7", now.Add(-40*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, sessions.Upsert(ctx, old))
	fresh, err := models.NewSession(id.NewSessionID(), userID, "a", "r", "198.51.100.4", now)
	require.NoError(t, err)
	require.NoError(t, sessions.Upsert(ctx, fresh))

	ledger := tokenLedger{store: tokens}
	svc, err := New(ledger, sessions, 30*24*time.Hour, 30*24*time.Hour)
	require.NoError(t, err)

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.PrunedTokens)
	require.Equal(t, 1, res.DeletedSessions)

	_, err = tokens.Find(ctx, "live")
	require.NoError(t, err)
	_, err = sessions.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestRunOncePropagatesSweepErrors(t *testing.T) {
	tokens := refreshtoken.NewInMemory()
	svc, err := New(tokenLedger{store: tokens}, failingSweeper{}, time.Hour, time.Hour)
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "delete stale sessions")
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(nil, session.NewInMemory(), time.Hour, time.Hour)
	require.Error(t, err)
}

// tokenLedger adapts the store's prune method to the TokenPruner interface
// the way the service wires the real ledger.
type tokenLedger struct {
	store *refreshtoken.InMemoryStore
}

func (l tokenLedger) Prune(ctx context.Context, cutoff, now time.Time) (int, error) {
	return l.store.DeleteInactiveBefore(ctx, cutoff, now)
}
