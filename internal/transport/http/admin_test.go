package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"portico/internal/audit"
	"portico/internal/identity/authz"
	"portico/internal/identity/models"
	tenantstore "portico/internal/identity/store/tenant"
	"portico/internal/identity/token"
	id "portico/pkg/domain"
)

type AdminHandlerSuite struct {
	suite.Suite
	sessions *stubSessions
	tenants  *tenantstore.InMemoryStore
	audits   *audit.InMemoryStore
	signer   *token.Signer
	router   http.Handler

	systemTenantID id.TenantID
}

func (s *AdminHandlerSuite) SetupTest() {
	s.sessions = &stubSessions{byID: map[id.SessionID]*models.Session{}}
	s.tenants = tenantstore.NewInMemory()
	s.audits = audit.NewInMemoryStore()

	signer, err := token.NewSigner("admin-test-signing-key", "portico", 15*time.Minute)
	s.Require().NoError(err)
	s.signer = signer

	s.systemTenantID = id.NewTenantID()
	s.Require().NoError(s.tenants.CreateTenant(context.Background(), &models.Tenant{
		ID:        s.systemTenantID,
		Name:      authz.SystemTenantName,
		CreatedOn: time.Now(),
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checker := authz.New(s.tenants, s.tenants, authz.WithLogger(logger))
	admin := NewAdmin(s.sessions, signer, checker, s.audits, logger)

	handler := New(&stubAuth{}, s.sessions, signer, logger, WithInsecureCookie())
	s.router = NewRouter(handler, admin, logger, RouterConfig{})
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

// signInAs builds a live session whose access token carries the given claims
// and registers any matching persisted assignment.
func (s *AdminHandlerSuite) signInAs(userID id.UserID, roleName string) *http.Cookie {
	var claims []models.TenantRoleClaim
	if roleName != "" {
		roleID := id.NewRoleID()
		claims = []models.TenantRoleClaim{{TenantID: s.systemTenantID, RoleID: roleID, RoleName: roleName}}
		s.Require().NoError(s.tenants.UpsertAssignment(context.Background(), &models.TenantRoleAssignment{
			UserID:    userID,
			TenantID:  s.systemTenantID,
			RoleID:    roleID,
			RoleName:  roleName,
			CreatedOn: time.Now(),
		}))
	}

	user := &models.User{ID: userID, Email: "subject@portal.test", FirstName: "Test", LastName: "Subject"}
	accessToken, err := s.signer.Sign(user, claims, time.Now())
	s.Require().NoError(err)

	sessionID := id.NewSessionID()
	s.sessions.byID[sessionID] = &models.Session{
		ID:          sessionID,
		UserID:      userID,
		AccessToken: accessToken,
		OriginIP:    "192.0.2.1",
	}
	return &http.Cookie{Name: defaultCookieName, Value: sessionID.String()}
}

func (s *AdminHandlerSuite) listAuditEvents(target id.UserID, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/users/"+target.String()+"/audit-events", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *AdminHandlerSuite) TestListAuditEvents() {
	s.T().Run("a user reads their own trail", func(t *testing.T) {
		userID := id.NewUserID()
		cookie := s.signInAs(userID, "")
		require.NoError(t, s.audits.Append(context.Background(), audit.Event{
			Timestamp: time.Now(),
			UserID:    userID.String(),
			Action:    string(audit.EventLoginSucceeded),
			OriginIP:  "192.0.2.1",
		}))

		rec := s.listAuditEvents(userID, cookie)

		require.Equal(t, http.StatusOK, rec.Code)
		var events []audit.Event
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
		require.Len(t, events, 1)
		assert.Equal(t, string(audit.EventLoginSucceeded), events[0].Action)
	})

	s.T().Run("a system administrator reads any trail", func(t *testing.T) {
		adminID := id.NewUserID()
		cookie := s.signInAs(adminID, models.RoleNameSystemAdmin)

		rec := s.listAuditEvents(id.NewUserID(), cookie)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	s.T().Run("a plain user cannot read another user's trail", func(t *testing.T) {
		cookie := s.signInAs(id.NewUserID(), "")

		rec := s.listAuditEvents(id.NewUserID(), cookie)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	s.T().Run("a tenant administrator is not a system administrator", func(t *testing.T) {
		cookie := s.signInAs(id.NewUserID(), models.RoleNameTenantAdmin)

		rec := s.listAuditEvents(id.NewUserID(), cookie)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	s.T().Run("401 without a session", func(t *testing.T) {
		rec := s.listAuditEvents(id.NewUserID(), nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	s.T().Run("401 when the stored access token has expired", func(t *testing.T) {
		userID := id.NewUserID()
		user := &models.User{ID: userID, Email: "expired@portal.test"}
		accessToken, err := s.signer.Sign(user, nil, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		sessionID := id.NewSessionID()
		s.sessions.byID[sessionID] = &models.Session{ID: sessionID, UserID: userID, AccessToken: accessToken}

		rec := s.listAuditEvents(userID, &http.Cookie{Name: defaultCookieName, Value: sessionID.String()})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
