package service

import (
	"context"
	"time"

	"portico/internal/audit"
	dErrors "portico/pkg/domain-errors"
	"portico/pkg/secrets"
)

// ErrVerificationTokenInvalid covers unknown and already-consumed
// verification tokens.
var ErrVerificationTokenInvalid = dErrors.New(dErrors.CodeTokenInactive, "verification token is invalid")

// VerifyEmail consumes a one-time verification token: the account is marked
// verified and its initial password hash set in the same update. A consumed
// token no longer resolves, so repeat calls fail.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken, password, originIP string) error {
	start := time.Now()
	defer s.observeFlow("verify_email", start)

	ctx, span := s.tracer.Start(ctx, "identity.VerifyEmail")
	defer span.End()

	user, err := s.users.FindByVerificationToken(ctx, verificationToken)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return ErrVerificationTokenInvalid
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "lookup verification token")
	}

	hash, err := secrets.Hash(password)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	now := time.Now()
	if !user.MarkVerified(now) {
		return ErrVerificationTokenInvalid
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist verification")
	}

	s.logAudit(ctx, audit.EventEmailVerified,
		"user_id", user.ID.String(),
		"origin_ip", originIP,
	)
	if s.metrics != nil {
		s.metrics.IncrementEmailsVerified()
	}
	return nil
}
