package service

import (
	"context"
	"time"

	"portico/internal/audit"
	"portico/internal/identity/email"
	dErrors "portico/pkg/domain-errors"
	"portico/pkg/secrets"
)

// ErrResetTokenInvalid covers unknown, consumed and expired reset tokens
// alike.
var ErrResetTokenInvalid = dErrors.New(dErrors.CodeTokenInactive, "reset token is invalid or expired")

// ForgotPassword issues a one-time reset token and mails it. An unknown
// address is silently accepted so the endpoint leaks nothing about existing
// accounts; the internal outcome is still audited.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr, originIP string) error {
	start := time.Now()
	defer s.observeFlow("forgot_password", start)

	ctx, span := s.tracer.Start(ctx, "identity.ForgotPassword")
	defer span.End()

	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email", "origin_ip", originIP)
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "lookup user")
	}

	resetToken, err := s.resetTokens.Generate(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate reset token")
	}

	now := time.Now()
	user.SetResetToken(resetToken, now.Add(s.resetTTL))
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist reset token")
	}

	if s.mail != nil {
		s.mail.Enqueue(email.ResetMessage(user.Email, resetToken, s.portalURL))
	}
	s.logAudit(ctx, audit.EventPasswordResetRequested,
		"user_id", user.ID.String(),
		"origin_ip", originIP,
	)
	return nil
}

// ValidateResetToken reports whether a reset token is known and unexpired,
// without consuming it. The portal calls this before showing the reset form.
func (s *Service) ValidateResetToken(ctx context.Context, resetToken string) error {
	user, err := s.users.FindByResetToken(ctx, resetToken)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return ErrResetTokenInvalid
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "lookup reset token")
	}
	if !user.ResetTokenValid(resetToken, time.Now()) {
		return ErrResetTokenInvalid
	}
	return nil
}

// ResetPassword consumes a reset token exactly once: the password is
// rehashed and the token fields cleared in the same update. All the user's
// sessions are dropped so stolen cookies die with the old password.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword, originIP string) error {
	start := time.Now()
	defer s.observeFlow("reset_password", start)

	ctx, span := s.tracer.Start(ctx, "identity.ResetPassword")
	defer span.End()

	user, err := s.users.FindByResetToken(ctx, resetToken)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return ErrResetTokenInvalid
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "lookup reset token")
	}
	if !user.ResetTokenValid(resetToken, time.Now()) {
		return ErrResetTokenInvalid
	}

	hash, err := secrets.Hash(newPassword)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}
	user.PasswordHash = hash
	user.ClearResetToken()
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist password")
	}

	if _, err := s.sessions.DeleteAllForUser(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to drop sessions after password reset",
			"user_id", user.ID.String(),
			"error", err,
		)
	}

	s.logAudit(ctx, audit.EventPasswordReset,
		"user_id", user.ID.String(),
		"origin_ip", originIP,
	)
	if s.metrics != nil {
		s.metrics.IncrementPasswordResets()
	}
	return nil
}
