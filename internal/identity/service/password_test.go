package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portico/internal/audit"
	"portico/internal/identity/email"
	"portico/internal/identity/models"
	"portico/internal/identity/store/user"
	id "portico/pkg/domain"
	"portico/pkg/secrets"
)

func (s *ServiceSuite) TestForgotPassword() {
	userID := id.NewUserID()
	originIP := "203.0.113.7"

	s.T().Run("stores a reset token and mails it", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		var issuedToken string

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockUserStore.EXPECT().TokenExists(gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
		s.mockUserStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, u *models.User) error {
				assert.NotEmpty(s.T(), u.ResetToken)
				require.NotNil(s.T(), u.ResetTokenExpires)
				assert.True(s.T(), u.ResetTokenExpires.After(time.Now()))
				issuedToken = u.ResetToken
				return nil
			})
		s.mockMailQueue.EXPECT().Enqueue(gomock.Any()).Do(
			func(msg email.Message) {
				assert.Equal(s.T(), mockUser.Email, msg.To)
				assert.Contains(s.T(), msg.Body, "reset-password")
				assert.Contains(s.T(), msg.Body, issuedToken)
			})
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventPasswordResetRequested), event.Action)
				return nil
			})

		err := s.service.ForgotPassword(context.Background(), mockUser.Email, originIP)
		require.NoError(s.T(), err)
	})

	s.T().Run("unknown email is silently accepted", func(t *testing.T) {
		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), "ghost@portal.test").Return(nil, user.ErrNotFound)
		// No update, no mail, no audit event.

		err := s.service.ForgotPassword(context.Background(), "ghost@portal.test", originIP)
		require.NoError(s.T(), err)
	})
}

func (s *ServiceSuite) TestValidateResetToken() {
	userID := id.NewUserID()

	s.T().Run("valid token passes without being consumed", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		mockUser.SetResetToken("tok_reset", time.Now().Add(time.Hour))

		s.mockUserStore.EXPECT().FindByResetToken(gomock.Any(), "tok_reset").Return(mockUser, nil)

		err := s.service.ValidateResetToken(context.Background(), "tok_reset")
		require.NoError(s.T(), err)
		assert.Equal(s.T(), "tok_reset", mockUser.ResetToken)
	})

	s.T().Run("expired token is rejected", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		mockUser.SetResetToken("tok_reset", time.Now().Add(-time.Minute))

		s.mockUserStore.EXPECT().FindByResetToken(gomock.Any(), "tok_reset").Return(mockUser, nil)

		err := s.service.ValidateResetToken(context.Background(), "tok_reset")
		assert.ErrorIs(s.T(), err, ErrResetTokenInvalid)
	})

	s.T().Run("unknown token is rejected", func(t *testing.T) {
		s.mockUserStore.EXPECT().FindByResetToken(gomock.Any(), "tok_missing").Return(nil, user.ErrNotFound)

		err := s.service.ValidateResetToken(context.Background(), "tok_missing")
		assert.ErrorIs(s.T(), err, ErrResetTokenInvalid)
	})
}

func (s *ServiceSuite) TestResetPassword() {
	userID := id.NewUserID()
	originIP := "203.0.113.7"

	s.T().Run("rehashes the password, clears the token and drops sessions", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		mockUser.SetResetToken("tok_reset", time.Now().Add(time.Hour))
		oldHash := mockUser.PasswordHash

		s.mockUserStore.EXPECT().FindByResetToken(gomock.Any(), "tok_reset").Return(mockUser, nil)
		s.mockUserStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, u *models.User) error {
				assert.NotEqual(s.T(), oldHash, u.PasswordHash)
				assert.NoError(s.T(), secrets.Verify("brand new password", u.PasswordHash))
				assert.Empty(s.T(), u.ResetToken)
				assert.Nil(s.T(), u.ResetTokenExpires)
				return nil
			})
		s.mockSessionStore.EXPECT().DeleteAllForUser(gomock.Any(), userID).Return(2, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventPasswordReset), event.Action)
				return nil
			})

		err := s.service.ResetPassword(context.Background(), "tok_reset", "brand new password", originIP)
		require.NoError(s.T(), err)
	})

	s.T().Run("expired token cannot reset", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		mockUser.SetResetToken("tok_reset", time.Now().Add(-time.Minute))

		s.mockUserStore.EXPECT().FindByResetToken(gomock.Any(), "tok_reset").Return(mockUser, nil)

		err := s.service.ResetPassword(context.Background(), "tok_reset", "new password", originIP)
		assert.ErrorIs(s.T(), err, ErrResetTokenInvalid)
	})

	s.T().Run("consumed token no longer resolves", func(t *testing.T) {
		s.mockUserStore.EXPECT().FindByResetToken(gomock.Any(), "tok_reset").Return(nil, user.ErrNotFound)

		err := s.service.ResetPassword(context.Background(), "tok_reset", "new password", originIP)
		assert.ErrorIs(s.T(), err, ErrResetTokenInvalid)
	})
}
