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
)

func (s *ServiceSuite) TestSignIn() {
	userID := id.NewUserID()
	tenantID := id.NewTenantID()
	originIP := "203.0.113.7"
	userAgent := "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0"

	s.T().Run("happy path establishes session and returns token pair", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		assignments := s.newAssignments(userID, tenantID)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockAssignments.EXPECT().ListAssignmentsForUser(gomock.Any(), userID).Return(assignments, nil)
		s.mockSigner.EXPECT().Sign(mockUser, gomock.Any(), gomock.Any()).Return("signed-access-token", nil)
		s.mockLedger.EXPECT().Issue(gomock.Any(), userID, originIP, gomock.Any()).
			Return(s.newRefreshToken("tok_fresh", userID, originIP), nil)
		s.mockSessionStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, session *models.Session) error {
				assert.Equal(s.T(), userID, session.UserID)
				assert.Equal(s.T(), originIP, session.OriginIP)
				assert.Equal(s.T(), "signed-access-token", session.AccessToken)
				assert.Equal(s.T(), "tok_fresh", session.RefreshToken)
				assert.NotEmpty(s.T(), session.DeviceName)
				return nil
			})
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventLoginSucceeded), event.Action)
				assert.Equal(s.T(), originIP, event.OriginIP)
				return nil
			})

		result, err := s.service.SignIn(context.Background(), mockUser.Email, testPassword, originIP, userAgent)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), "signed-access-token", result.AccessToken)
		assert.Equal(s.T(), "tok_fresh", result.RefreshToken)
		assert.Len(s.T(), result.TenantRoles, 1)
		assert.Equal(s.T(), models.RoleNameTenantAdmin, result.TenantRoles[0].RoleName)
		assert.NotNil(s.T(), result.Session)
	})

	s.T().Run("unknown email yields uniform invalid credentials", func(t *testing.T) {
		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), "ghost@portal.test").Return(nil, user.ErrNotFound)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.SignIn(context.Background(), "ghost@portal.test", testPassword, originIP, userAgent)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
	})

	s.T().Run("wrong password yields the same invalid credentials error", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventLoginFailedCredentials), event.Action)
				return nil
			})

		result, err := s.service.SignIn(context.Background(), mockUser.Email, "not the password", originIP, userAgent)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
	})

	s.T().Run("unverified account fails with a distinct error before the password check", func(t *testing.T) {
		unverified := s.newVerifiedUser(userID)
		unverified.VerifiedOn = nil
		unverified.VerificationToken = "pending"

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), unverified.Email).Return(unverified, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventLoginFailedUnverified), event.Action)
				return nil
			})

		// The correct password changes nothing for an unverified account.
		result, err := s.service.SignIn(context.Background(), unverified.Email, testPassword, originIP, userAgent)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrNotVerified)
		assert.NotErrorIs(s.T(), err, ErrInvalidCredentials)
	})

	s.T().Run("deactivated account is treated as unverified", func(t *testing.T) {
		inactive := s.newVerifiedUser(userID)
		inactive.Active = false

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), inactive.Email).Return(inactive, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.SignIn(context.Background(), inactive.Email, testPassword, originIP, userAgent)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrNotVerified)
	})

	s.T().Run("no tenant roles still signs in with empty claims", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockAssignments.EXPECT().ListAssignmentsForUser(gomock.Any(), userID).Return(nil, nil)
		s.mockSigner.EXPECT().Sign(mockUser, gomock.Any(), gomock.Any()).Return("signed-access-token", nil)
		s.mockLedger.EXPECT().Issue(gomock.Any(), userID, originIP, gomock.Any()).
			Return(s.newRefreshToken("tok_fresh", userID, originIP), nil)
		s.mockSessionStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.SignIn(context.Background(), mockUser.Email, testPassword, originIP, userAgent)
		require.NoError(s.T(), err)
		assert.Empty(s.T(), result.TenantRoles)
	})
}
