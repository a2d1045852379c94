package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "portico/pkg/domain"
)

type ModelsSuite struct {
	suite.Suite
	now time.Time
}

func (s *ModelsSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsSuite))
}

func (s *ModelsSuite) TestRefreshToken_ExpiryIndependentOfRevocation() {
	token := &RefreshToken{
		Token:     "tok",
		UserID:    id.NewUserID(),
		CreatedOn: s.now.Add(-48 * time.Hour),
		ExpiresOn: s.now.Add(-time.Hour),
	}

	s.True(token.IsExpired(s.now))
	s.False(token.IsRevoked())
	s.False(token.IsActive(s.now))
}

func (s *ModelsSuite) TestRefreshToken_ActiveWhenNeither() {
	token := &RefreshToken{
		Token:     "tok",
		CreatedOn: s.now,
		ExpiresOn: s.now.Add(time.Hour),
	}
	s.True(token.IsActive(s.now))
}

func (s *ModelsSuite) TestRefreshToken_ExpiryBoundaryIsInclusive() {
	token := &RefreshToken{Token: "tok", ExpiresOn: s.now}
	s.True(token.IsExpired(s.now))
}

func (s *ModelsSuite) TestRefreshToken_RevokeStampsMetadata() {
	token := &RefreshToken{
		Token:     "old",
		ExpiresOn: s.now.Add(time.Hour),
	}

	s.True(token.Revoke(s.now, "10.1.1.1", ReasonReplaced, "new"))
	s.Require().NotNil(token.RevokedOn)
	s.Equal(s.now, *token.RevokedOn)
	s.Equal("10.1.1.1", token.RevokedByIP)
	s.Equal(ReasonReplaced, token.ReasonRevoked)
	s.Equal("new", token.ReplacedByToken)
	s.False(token.IsActive(s.now))
}

func (s *ModelsSuite) TestRefreshToken_RevokeIsIdempotent() {
	token := &RefreshToken{Token: "old", ExpiresOn: s.now.Add(time.Hour)}
	s.True(token.Revoke(s.now, "10.1.1.1", ReasonReplaced, "new"))

	later := s.now.Add(time.Minute)
	s.False(token.Revoke(later, "10.2.2.2", ReasonReplayDetected, "other"))
	s.Equal(s.now, *token.RevokedOn)
	s.Equal("new", token.ReplacedByToken)
}

func (s *ModelsSuite) TestNewRefreshToken_Invariants() {
	_, err := NewRefreshToken("", id.NewUserID(), "ip", s.now, s.now.Add(time.Hour))
	s.Error(err)

	_, err = NewRefreshToken("tok", id.NewUserID(), "ip", s.now, s.now.Add(-time.Hour))
	s.Error(err)

	token, err := NewRefreshToken("tok", id.NewUserID(), "10.0.0.1", s.now, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal("10.0.0.1", token.CreatedByIP)
	s.True(token.IsActive(s.now))
}

func (s *ModelsSuite) TestUser_VerificationLifecycle() {
	user, err := NewUser(id.NewUserID(), "admin@example.com", "Ada", "Admin", s.now)
	s.Require().NoError(err)
	s.False(user.IsVerified())

	user.VerificationToken = "verify-me"
	s.True(user.MarkVerified(s.now))
	s.True(user.IsVerified())
	s.Empty(user.VerificationToken)

	s.False(user.MarkVerified(s.now.Add(time.Hour)))
	s.Equal(s.now, *user.VerifiedOn)
}

func (s *ModelsSuite) TestUser_ResetTokenLifecycle() {
	user := &User{Email: "admin@example.com"}
	user.SetResetToken("reset-tok", s.now.Add(24*time.Hour))

	s.True(user.ResetTokenValid("reset-tok", s.now))
	s.False(user.ResetTokenValid("wrong", s.now))
	s.False(user.ResetTokenValid("reset-tok", s.now.Add(25*time.Hour)))

	user.ClearResetToken()
	s.False(user.ResetTokenValid("reset-tok", s.now))
}

func (s *ModelsSuite) TestSession_ApplyTokensOverwrites() {
	session, err := NewSession(id.NewSessionID(), id.NewUserID(), "at1", "rt1", "10.0.0.1", s.now)
	s.Require().NoError(err)

	later := s.now.Add(time.Minute)
	session.ApplyTokens("at2", "rt2", later)
	s.Equal("at2", session.AccessToken)
	s.Equal("rt2", session.RefreshToken)
	s.Equal(later, session.CreatedOn)
}

func (s *ModelsSuite) TestClaims_RoundTrip() {
	tenantID := id.NewTenantID()
	claims := []TenantRoleClaim{
		{TenantID: tenantID, RoleID: id.NewRoleID(), RoleName: RoleNameSystemAdmin},
		{TenantID: id.NewTenantID(), RoleID: id.NewRoleID(), RoleName: RoleNameUser},
	}

	serialized, err := EncodeTenantRoleClaims(claims)
	s.Require().NoError(err)

	decoded, err := DecodeTenantRoleClaims(serialized)
	s.Require().NoError(err)
	s.Equal(claims, decoded)

	found, ok := FindClaim(decoded, tenantID)
	s.True(ok)
	s.Equal(RoleNameSystemAdmin, found.RoleName)

	_, ok = FindClaim(decoded, id.NewTenantID())
	s.False(ok)
}

func (s *ModelsSuite) TestClaims_MalformedAndEmpty() {
	decoded, err := DecodeTenantRoleClaims("")
	s.NoError(err)
	s.Empty(decoded)

	_, err = DecodeTenantRoleClaims("{not json")
	s.Error(err)
}

func (s *ModelsSuite) TestClaimsFromAssignments() {
	assignment := TenantRoleAssignment{
		UserID:   id.NewUserID(),
		TenantID: id.NewTenantID(),
		RoleID:   id.NewRoleID(),
		RoleName: RoleNameTenantAdmin,
	}
	claims := ClaimsFromAssignments([]TenantRoleAssignment{assignment})
	s.Require().Len(claims, 1)
	s.Equal(assignment.TenantID, claims[0].TenantID)
	s.Equal(assignment.RoleID, claims[0].RoleID)
	s.Equal(RoleNameTenantAdmin, claims[0].RoleName)
}
