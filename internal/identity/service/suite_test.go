package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"portico/internal/identity/models"
	"portico/internal/identity/service/mocks"
	id "portico/pkg/domain"
	"portico/pkg/secrets"
)

type ServiceSuite struct {
	suite.Suite
	ctrl               *gomock.Controller
	mockUserStore      *mocks.MockUserStore
	mockSessionStore   *mocks.MockSessionStore
	mockAssignments    *mocks.MockAssignmentStore
	mockLedger         *mocks.MockTokenLedger
	mockSigner         *mocks.MockAccessSigner
	mockAuditPublisher *mocks.MockAuditPublisher
	mockMailQueue      *mocks.MockMailQueue
	service            *Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockUserStore = mocks.NewMockUserStore(s.ctrl)
	s.mockSessionStore = mocks.NewMockSessionStore(s.ctrl)
	s.mockAssignments = mocks.NewMockAssignmentStore(s.ctrl)
	s.mockLedger = mocks.NewMockTokenLedger(s.ctrl)
	s.mockSigner = mocks.NewMockAccessSigner(s.ctrl)
	s.mockAuditPublisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.mockMailQueue = mocks.NewMockMailQueue(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.mockUserStore,
		s.mockSessionStore,
		s.mockAssignments,
		s.mockLedger,
		s.mockSigner,
		WithLogger(logger),
		WithAuditPublisher(s.mockAuditPublisher),
		WithMailQueue(s.mockMailQueue),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// Shared fixture builders used across the flow test files.

const testPassword = "correct horse battery staple"

// newVerifiedUser returns an active, verified user whose stored hash matches
// testPassword.
func (s *ServiceSuite) newVerifiedUser(userID id.UserID) *models.User {
	hash, err := secrets.Hash(testPassword)
	s.Require().NoError(err)

	verifiedOn := time.Now().Add(-24 * time.Hour)
	return &models.User{
		ID:           userID,
		Email:        "admin@portal.test",
		PasswordHash: hash,
		FirstName:    "Grace",
		LastName:     "Hopper",
		Active:       true,
		VerifiedOn:   &verifiedOn,
		CreatedOn:    time.Now().Add(-30 * 24 * time.Hour),
	}
}

func (s *ServiceSuite) newAssignments(userID id.UserID, tenantID id.TenantID) []*models.TenantRoleAssignment {
	return []*models.TenantRoleAssignment{
		{
			UserID:    userID,
			TenantID:  tenantID,
			RoleID:    id.NewRoleID(),
			RoleName:  models.RoleNameTenantAdmin,
			CreatedOn: time.Now().Add(-30 * 24 * time.Hour),
		},
	}
}

func (s *ServiceSuite) newRefreshToken(token string, userID id.UserID, originIP string) *models.RefreshToken {
	return &models.RefreshToken{
		Token:       token,
		UserID:      userID,
		ExpiresOn:   time.Now().Add(30 * 24 * time.Hour),
		CreatedOn:   time.Now().Add(-time.Hour),
		CreatedByIP: originIP,
	}
}

func (s *ServiceSuite) newTestSession(userID id.UserID, originIP string) *models.Session {
	return &models.Session{
		ID:           id.NewSessionID(),
		UserID:       userID,
		AccessToken:  "old-access-token",
		RefreshToken: "old-refresh-token",
		OriginIP:     originIP,
		DeviceName:   "Chrome on Linux",
		CreatedOn:    time.Now().Add(-time.Hour),
	}
}
