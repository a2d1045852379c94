package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"portico/internal/audit"
	"portico/internal/identity/device"
	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
	"portico/pkg/secrets"
)

// ErrInvalidCredentials is the uniform failure for an unknown email or a
// wrong password; the two are indistinguishable to the caller.
var ErrInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// ErrNotVerified is returned when the account exists and the password is
// right but email verification was never completed.
var ErrNotVerified = dErrors.New(dErrors.CodeNotVerified, "account is not verified")

// SignIn authenticates credentials and establishes a session for the origin
// IP. On success the caller receives a signed access token, a refresh token
// and the session record; the session is persisted before the tokens are
// returned.
func (s *Service) SignIn(ctx context.Context, emailAddr, password, originIP, userAgent string) (*Result, error) {
	start := time.Now()
	defer s.observeFlow("sign_in", start)

	ctx, span := s.tracer.Start(ctx, "identity.SignIn")
	defer span.End()

	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.authFailure(ctx, audit.EventLoginFailedCredentials,
				"origin_ip", originIP,
				"detail", "unknown email",
			)
			return nil, ErrInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lookup user")
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	// Verification gate precedes the password check: an unverified account
	// is reported as such even with the right password.
	if !user.IsVerified() || !user.Active {
		s.authFailure(ctx, audit.EventLoginFailedUnverified,
			"user_id", user.ID.String(),
			"origin_ip", originIP,
		)
		return nil, ErrNotVerified
	}

	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		s.authFailure(ctx, audit.EventLoginFailedCredentials,
			"user_id", user.ID.String(),
			"origin_ip", originIP,
			"detail", "password mismatch",
		)
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	claims, err := s.claimsFor(ctx, user.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load tenant roles")
	}

	accessToken, err := s.signer.Sign(user, claims, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign access token")
	}

	refreshToken, err := s.ledger.Issue(ctx, user.ID, originIP, now)
	if err != nil {
		return nil, err
	}

	session, err := s.establishSession(ctx, user.ID, accessToken, refreshToken.Token, originIP, userAgent, now)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventLoginSucceeded,
		"user_id", user.ID.String(),
		"origin_ip", originIP,
	)
	if s.metrics != nil {
		s.metrics.IncrementSignIns()
	}

	return &Result{
		User:         user,
		TenantRoles:  claims,
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		Session:      session,
	}, nil
}

// establishSession upserts the session for (user, origin IP), replacing any
// previous sign-in from the same origin.
func (s *Service) establishSession(ctx context.Context, userID id.UserID, accessToken, refreshToken, originIP, userAgent string, now time.Time) (*models.Session, error) {
	session, err := models.NewSession(id.NewSessionID(), userID, accessToken, refreshToken, originIP, now)
	if err != nil {
		return nil, err
	}
	session.DeviceName = device.DisplayName(userAgent)
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist session")
	}
	return session, nil
}
