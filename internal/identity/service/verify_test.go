package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portico/internal/audit"
	"portico/internal/identity/models"
	"portico/internal/identity/store/user"
	id "portico/pkg/domain"
	"portico/pkg/secrets"
)

func (s *ServiceSuite) TestVerifyEmail() {
	userID := id.NewUserID()
	originIP := "203.0.113.7"

	s.T().Run("consumes the token and sets the initial password", func(t *testing.T) {
		pending := s.newVerifiedUser(userID)
		pending.VerifiedOn = nil
		pending.VerificationToken = "tok_verify"
		pending.PasswordHash = ""

		s.mockUserStore.EXPECT().FindByVerificationToken(gomock.Any(), "tok_verify").Return(pending, nil)
		s.mockUserStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, u *models.User) error {
				assert.True(s.T(), u.IsVerified())
				assert.Empty(s.T(), u.VerificationToken)
				assert.NoError(s.T(), secrets.Verify("chosen password", u.PasswordHash))
				return nil
			})
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventEmailVerified), event.Action)
				return nil
			})

		err := s.service.VerifyEmail(context.Background(), "tok_verify", "chosen password", originIP)
		require.NoError(s.T(), err)
	})

	s.T().Run("unknown token is rejected", func(t *testing.T) {
		s.mockUserStore.EXPECT().FindByVerificationToken(gomock.Any(), "tok_missing").Return(nil, user.ErrNotFound)

		err := s.service.VerifyEmail(context.Background(), "tok_missing", "chosen password", originIP)
		assert.ErrorIs(s.T(), err, ErrVerificationTokenInvalid)
	})

	s.T().Run("already verified account cannot be verified again", func(t *testing.T) {
		verified := s.newVerifiedUser(userID)
		verified.VerificationToken = "tok_stale"

		s.mockUserStore.EXPECT().FindByVerificationToken(gomock.Any(), "tok_stale").Return(verified, nil)

		err := s.service.VerifyEmail(context.Background(), "tok_stale", "chosen password", originIP)
		assert.ErrorIs(s.T(), err, ErrVerificationTokenInvalid)
	})
}
