// Package ledger implements the refresh token lifecycle: issuance, rotation
// with replay detection, revocation cascades and pruning. Every rotation
// links the retired token to its replacement, so the ledger can walk the
// chain forward when a stolen token resurfaces.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"portico/internal/identity/models"
	"portico/internal/identity/token"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// ErrTokenInactive is returned when a presented token is revoked or expired
// and no replacement chain exists to cascade over.
var ErrTokenInactive = dErrors.New(dErrors.CodeTokenInactive, "refresh token is not active")

// ErrReplayDetected is returned when a revoked-and-replaced token is
// presented again. By the time the caller sees this error the descendant
// chain has already been revoked.
var ErrReplayDetected = dErrors.New(dErrors.CodeReplayDetected, "refresh token reuse detected")

// Store is the persistence surface the ledger requires. Execute must
// serialize concurrent access to a single token row and surface the stale
// record alongside the validation error when validation fails.
type Store interface {
	Create(ctx context.Context, record *models.RefreshToken) error
	Find(ctx context.Context, tokenValue string) (*models.RefreshToken, error)
	Exists(ctx context.Context, tokenValue string) (bool, error)
	Update(ctx context.Context, record *models.RefreshToken) error
	Execute(ctx context.Context, tokenValue string, validate func(*models.RefreshToken) error, mutate func(*models.RefreshToken)) (*models.RefreshToken, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.RefreshToken, error)
	DeleteInactiveBefore(ctx context.Context, cutoff, now time.Time) (int, error)
	DeleteInactiveForUser(ctx context.Context, userID id.UserID, cutoff, now time.Time) (int, error)
}

// Ledger issues and rotates refresh tokens against a Store.
type Ledger struct {
	store     Store
	generator *token.Generator
	ttl       time.Duration
	logger    *slog.Logger

	// maxChainWalk bounds the revocation cascade in case of data corruption
	// introducing a cycle.
	maxChainWalk int
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs a Ledger. ttl bounds the lifetime of every issued token.
func New(store Store, ttl time.Duration, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		generator:    token.NewGenerator(store.Exists),
		ttl:          ttl,
		logger:       slog.Default(),
		maxChainWalk: 1000,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue mints a fresh refresh token for the user. Used at sign-in, where no
// predecessor exists.
func (l *Ledger) Issue(ctx context.Context, userID id.UserID, originIP string, now time.Time) (*models.RefreshToken, error) {
	value, err := l.generator.Generate(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate refresh token")
	}
	record, err := models.NewRefreshToken(value, userID, originIP, now, now.Add(l.ttl))
	if err != nil {
		return nil, err
	}
	if err := l.store.Create(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist refresh token")
	}
	return record, nil
}

// Rotate exchanges an active token for a new one. The presented token is
// revoked with reason "replaced" and linked forward to its replacement; the
// revoke and the link land in the same critical section, so of two racing
// rotations exactly one wins.
//
// Presenting a token that was already rotated is treated as replay: every
// descendant of the presented token is revoked and ErrReplayDetected is
// returned. Presenting a merely expired token fails with ErrTokenInactive
// and no cascade.
func (l *Ledger) Rotate(ctx context.Context, presented, originIP string, now time.Time) (*models.RefreshToken, error) {
	replacement, err := l.generator.Generate(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate replacement token")
	}

	stale, err := l.store.Execute(ctx, presented,
		func(record *models.RefreshToken) error {
			if !record.IsActive(now) {
				return ErrTokenInactive
			}
			return nil
		},
		func(record *models.RefreshToken) {
			record.Revoke(now, originIP, models.ReasonReplaced, replacement)
		},
	)
	if err != nil {
		return nil, l.handleRotateFailure(ctx, stale, originIP, now, err)
	}

	record, err := models.NewRefreshToken(replacement, stale.UserID, originIP, now, now.Add(l.ttl))
	if err != nil {
		return nil, err
	}
	if err := l.store.Create(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist replacement token")
	}
	return record, nil
}

// handleRotateFailure distinguishes replay from ordinary inactivity. A
// revoked token that names a replacement was rotated before; someone holding
// it now means the chain leaked, so the whole lineage gets cut.
func (l *Ledger) handleRotateFailure(ctx context.Context, stale *models.RefreshToken, originIP string, now time.Time, cause error) error {
	if stale == nil || !stale.IsRevoked() || stale.ReplacedByToken == "" {
		return cause
	}

	revoked, err := l.RevokeDescendants(ctx, stale, originIP, now)
	if err != nil {
		l.logger.Error("revocation cascade failed",
			"user_id", stale.UserID.String(),
			"error", err,
		)
	}
	l.logger.Warn("refresh token replay detected",
		"user_id", stale.UserID.String(),
		"origin_ip", originIP,
		"descendants_revoked", revoked,
	)
	return ErrReplayDetected
}

// Revoke retires a token without replacement, stamping the given reason.
// Used by sign-out. Revoking an already-inactive token returns
// ErrTokenInactive.
func (l *Ledger) Revoke(ctx context.Context, presented, originIP, reason string, now time.Time) error {
	_, err := l.store.Execute(ctx, presented,
		func(record *models.RefreshToken) error {
			if record.IsRevoked() {
				return ErrTokenInactive
			}
			return nil
		},
		func(record *models.RefreshToken) {
			record.Revoke(now, originIP, reason, "")
		},
	)
	return err
}

// RevokeDescendants walks the replacement chain forward from the given
// record and revokes every descendant with reason "replay_detected".
// Already-revoked links are traversed but left untouched, so the first
// revocation's metadata survives. Returns the number of tokens revoked.
func (l *Ledger) RevokeDescendants(ctx context.Context, from *models.RefreshToken, originIP string, now time.Time) (int, error) {
	revoked := 0
	next := from.ReplacedByToken
	for steps := 0; next != "" && steps < l.maxChainWalk; steps++ {
		record, err := l.store.Find(ctx, next)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				// Pruned mid-chain; nothing beyond it survives.
				return revoked, nil
			}
			return revoked, err
		}

		if record.Revoke(now, originIP, models.ReasonReplayDetected, record.ReplacedByToken) {
			if err := l.store.Update(ctx, record); err != nil {
				return revoked, err
			}
			revoked++
		}
		next = record.ReplacedByToken
	}
	return revoked, nil
}

// Lookup returns the record for a presented token regardless of state.
// Callers needing the active-only variant use Active.
func (l *Ledger) Lookup(ctx context.Context, presented string) (*models.RefreshToken, error) {
	return l.store.Find(ctx, presented)
}

// Active returns the record for a presented token only if it may still be
// exchanged.
func (l *Ledger) Active(ctx context.Context, presented string, now time.Time) (*models.RefreshToken, error) {
	record, err := l.store.Find(ctx, presented)
	if err != nil {
		return nil, err
	}
	if !record.IsActive(now) {
		return nil, ErrTokenInactive
	}
	return record, nil
}

// Prune deletes inactive tokens created before the cutoff and returns the
// count. Active tokens are never pruned regardless of age; a revoked link
// must outlive its revocation long enough for replay detection to walk over
// it, hence the retention window.
func (l *Ledger) Prune(ctx context.Context, cutoff, now time.Time) (int, error) {
	return l.store.DeleteInactiveBefore(ctx, cutoff, now)
}

// PruneForUser deletes a single user's inactive tokens past the cutoff.
func (l *Ledger) PruneForUser(ctx context.Context, userID id.UserID, cutoff, now time.Time) (int, error) {
	return l.store.DeleteInactiveForUser(ctx, userID, cutoff, now)
}
