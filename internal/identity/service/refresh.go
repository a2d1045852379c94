package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"portico/internal/audit"
	"portico/internal/identity/ledger"
	"portico/internal/identity/models"
	dErrors "portico/pkg/domain-errors"
)

// ErrTokenInactive is the uniform failure for a refresh token that cannot be
// exchanged, whatever the internal reason.
var ErrTokenInactive = dErrors.New(dErrors.CodeTokenInactive, "refresh token is not active")

// Refresh exchanges an active refresh token for a new token pair. The token
// must belong to the user identified by email. Rotation is serialized per
// token; presenting an already-rotated token revokes its whole descendant
// chain before failing.
func (s *Service) Refresh(ctx context.Context, emailAddr, presented, originIP string) (*Result, error) {
	start := time.Now()
	defer s.observeFlow("refresh", start)

	ctx, span := s.tracer.Start(ctx, "identity.Refresh")
	defer span.End()

	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.authFailure(ctx, audit.EventLoginFailedCredentials,
				"origin_ip", originIP,
				"detail", "unknown email on refresh",
			)
			return nil, ErrTokenInactive
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup user")
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	// Account-state gate: deactivation after sign-in must cut the refresh
	// chain off, not just block new sign-ins. Reported uniformly.
	if !user.IsVerified() || !user.Active {
		s.authFailure(ctx, audit.EventLoginFailedUnverified,
			"user_id", user.ID.String(),
			"origin_ip", originIP,
			"detail", "inactive account on refresh",
		)
		return nil, ErrTokenInactive
	}

	// Ownership gate: a token minted for another user never rotates, no
	// matter its state.
	record, err := s.ledger.Lookup(ctx, presented)
	if err != nil || record.UserID != user.ID {
		s.authFailure(ctx, audit.EventLoginFailedCredentials,
			"user_id", user.ID.String(),
			"origin_ip", originIP,
			"detail", "refresh token not found for user",
		)
		return nil, ErrTokenInactive
	}

	now := time.Now()
	rotated, err := s.ledger.Rotate(ctx, presented, originIP, now)
	if err != nil {
		return nil, s.handleRotationError(ctx, err, user.ID.String(), originIP)
	}

	claims, err := s.claimsFor(ctx, user.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load tenant roles")
	}
	accessToken, err := s.signer.Sign(user, claims, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign access token")
	}

	// Update the origin's session in place when it survives; a pruned
	// session is re-created so a long-lived refresh chain keeps working.
	session, err := s.sessions.FindByUserAndIP(ctx, user.ID, originIP)
	if err == nil {
		session.ApplyTokens(accessToken, rotated.Token, now)
		if err := s.sessions.Upsert(ctx, session); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist session")
		}
	} else if dErrors.HasCode(err, dErrors.CodeNotFound) {
		session, err = s.establishSession(ctx, user.ID, accessToken, rotated.Token, originIP, "", now)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup session")
	}

	s.logAudit(ctx, audit.EventTokenRefreshed,
		"user_id", user.ID.String(),
		"origin_ip", originIP,
	)
	if s.metrics != nil {
		s.metrics.IncrementTokenRefreshes()
	}

	return &Result{
		User:         user,
		TenantRoles:  claims,
		AccessToken:  accessToken,
		RefreshToken: rotated.Token,
		Session:      session,
	}, nil
}

// handleRotationError audits the internal reason and collapses it to the
// uniform inactive-token error.
func (s *Service) handleRotationError(ctx context.Context, err error, userID, originIP string) error {
	if errors.Is(err, ledger.ErrReplayDetected) {
		s.authFailure(ctx, audit.EventReplayDetected,
			"user_id", userID,
			"origin_ip", originIP,
		)
		if s.metrics != nil {
			s.metrics.IncrementReplaysDetected()
		}
		return ErrTokenInactive
	}
	if errors.Is(err, ledger.ErrTokenInactive) || dErrors.HasCode(err, dErrors.CodeNotFound) {
		s.authFailure(ctx, audit.EventLoginFailedCredentials,
			"user_id", userID,
			"origin_ip", originIP,
			"detail", "inactive refresh token",
		)
		return ErrTokenInactive
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "rotate refresh token")
}

// SignOut revokes the session's refresh token and removes the session.
// Missing records are ignored: signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, session *models.Session, originIP string) error {
	ctx, span := s.tracer.Start(ctx, "identity.SignOut")
	defer span.End()

	now := time.Now()
	if err := s.ledger.Revoke(ctx, session.RefreshToken, originIP, models.ReasonSignedOut, now); err != nil {
		if !errors.Is(err, ledger.ErrTokenInactive) && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "revoke refresh token")
		}
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete session")
	}

	s.logAudit(ctx, audit.EventSignedOut,
		"user_id", session.UserID.String(),
		"origin_ip", originIP,
	)
	return nil
}
