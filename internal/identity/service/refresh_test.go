package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portico/internal/audit"
	"portico/internal/identity/ledger"
	"portico/internal/identity/models"
	"portico/internal/identity/store/session"
	"portico/internal/identity/store/user"
	id "portico/pkg/domain"
)

func (s *ServiceSuite) TestRefresh() {
	userID := id.NewUserID()
	tenantID := id.NewTenantID()
	originIP := "203.0.113.7"
	presented := "tok_current"

	s.T().Run("happy path rotates the token and updates the session in place", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		existing := s.newTestSession(userID, originIP)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockLedger.EXPECT().Lookup(gomock.Any(), presented).
			Return(s.newRefreshToken(presented, userID, originIP), nil)
		s.mockLedger.EXPECT().Rotate(gomock.Any(), presented, originIP, gomock.Any()).
			Return(s.newRefreshToken("tok_next", userID, originIP), nil)
		s.mockAssignments.EXPECT().ListAssignmentsForUser(gomock.Any(), userID).
			Return(s.newAssignments(userID, tenantID), nil)
		s.mockSigner.EXPECT().Sign(mockUser, gomock.Any(), gomock.Any()).Return("new-access-token", nil)
		s.mockSessionStore.EXPECT().FindByUserAndIP(gomock.Any(), userID, originIP).Return(existing, nil)
		s.mockSessionStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, sess *models.Session) error {
				// Same session record, new token pair.
				assert.Equal(s.T(), existing.ID, sess.ID)
				assert.Equal(s.T(), "new-access-token", sess.AccessToken)
				assert.Equal(s.T(), "tok_next", sess.RefreshToken)
				return nil
			})
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventTokenRefreshed), event.Action)
				return nil
			})

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), "new-access-token", result.AccessToken)
		assert.Equal(s.T(), "tok_next", result.RefreshToken)
		assert.Equal(s.T(), existing.ID, result.Session.ID)
	})

	s.T().Run("pruned session is re-created so the chain keeps working", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockLedger.EXPECT().Lookup(gomock.Any(), presented).
			Return(s.newRefreshToken(presented, userID, originIP), nil)
		s.mockLedger.EXPECT().Rotate(gomock.Any(), presented, originIP, gomock.Any()).
			Return(s.newRefreshToken("tok_next", userID, originIP), nil)
		s.mockAssignments.EXPECT().ListAssignmentsForUser(gomock.Any(), userID).Return(nil, nil)
		s.mockSigner.EXPECT().Sign(mockUser, gomock.Any(), gomock.Any()).Return("new-access-token", nil)
		s.mockSessionStore.EXPECT().FindByUserAndIP(gomock.Any(), userID, originIP).
			Return(nil, session.ErrNotFound)
		s.mockSessionStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, sess *models.Session) error {
				assert.Equal(s.T(), userID, sess.UserID)
				assert.Equal(s.T(), "tok_next", sess.RefreshToken)
				return nil
			})
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		require.NoError(s.T(), err)
		assert.NotNil(s.T(), result.Session)
	})

	s.T().Run("token owned by another user never rotates", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		otherID := id.NewUserID()

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockLedger.EXPECT().Lookup(gomock.Any(), presented).
			Return(s.newRefreshToken(presented, otherID, originIP), nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrTokenInactive)
	})

	s.T().Run("deactivated account cannot rotate a live token", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		mockUser.Active = false

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventLoginFailedUnverified), event.Action)
				return nil
			})

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrTokenInactive)
	})

	s.T().Run("unverified account cannot rotate a live token", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)
		mockUser.VerifiedOn = nil

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrTokenInactive)
	})

	s.T().Run("unknown email collapses to the uniform inactive error", func(t *testing.T) {
		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), "ghost@portal.test").Return(nil, user.ErrNotFound)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Refresh(context.Background(), "ghost@portal.test", presented, originIP)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrTokenInactive)
	})

	s.T().Run("replay is audited internally but never disclosed to the caller", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockLedger.EXPECT().Lookup(gomock.Any(), presented).
			Return(s.newRefreshToken(presented, userID, originIP), nil)
		s.mockLedger.EXPECT().Rotate(gomock.Any(), presented, originIP, gomock.Any()).
			Return(nil, ledger.ErrReplayDetected)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventReplayDetected), event.Action)
				return nil
			})

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrTokenInactive)
		assert.NotContains(s.T(), err.Error(), "replay")
	})

	s.T().Run("expired token fails with the uniform inactive error", func(t *testing.T) {
		mockUser := s.newVerifiedUser(userID)

		s.mockUserStore.EXPECT().FindByEmail(gomock.Any(), mockUser.Email).Return(mockUser, nil)
		s.mockLedger.EXPECT().Lookup(gomock.Any(), presented).
			Return(s.newRefreshToken(presented, userID, originIP), nil)
		s.mockLedger.EXPECT().Rotate(gomock.Any(), presented, originIP, gomock.Any()).
			Return(nil, ledger.ErrTokenInactive)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Refresh(context.Background(), mockUser.Email, presented, originIP)
		assert.Nil(s.T(), result)
		assert.ErrorIs(s.T(), err, ErrTokenInactive)
	})
}

func (s *ServiceSuite) TestSignOut() {
	userID := id.NewUserID()
	originIP := "203.0.113.7"

	s.T().Run("revokes the refresh token and deletes the session", func(t *testing.T) {
		sess := s.newTestSession(userID, originIP)

		s.mockLedger.EXPECT().Revoke(gomock.Any(), sess.RefreshToken, originIP, models.ReasonSignedOut, gomock.Any()).
			Return(nil)
		s.mockSessionStore.EXPECT().Delete(gomock.Any(), sess.ID).Return(nil)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, event audit.Event) error {
				assert.Equal(s.T(), string(audit.EventSignedOut), event.Action)
				return nil
			})

		err := s.service.SignOut(context.Background(), sess, originIP)
		require.NoError(s.T(), err)
	})

	s.T().Run("signing out twice is not an error", func(t *testing.T) {
		sess := s.newTestSession(userID, originIP)

		s.mockLedger.EXPECT().Revoke(gomock.Any(), sess.RefreshToken, originIP, models.ReasonSignedOut, gomock.Any()).
			Return(ledger.ErrTokenInactive)
		s.mockSessionStore.EXPECT().Delete(gomock.Any(), sess.ID).Return(session.ErrNotFound)
		s.mockAuditPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		err := s.service.SignOut(context.Background(), sess, originIP)
		require.NoError(s.T(), err)
	})
}
