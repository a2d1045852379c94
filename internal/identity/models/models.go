package models

import (
	"time"

	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// This file contains pure domain models for the identity engine: entities
// that should not depend on transport or HTTP-specific concerns.

// Well-known role names. Role rows live in the database; these names are the
// contract between persisted assignments and token claims.
const (
	RoleNameSystemAdmin = "System-Administrator"
	RoleNameTenantAdmin = "Tenant-Administrator"
	RoleNameUser        = "User"
)

// Revocation reasons stamped onto refresh tokens.
const (
	ReasonReplaced       = "replaced"
	ReasonReplayDetected = "replay_detected"
	ReasonSignedOut      = "signed_out"
)

// User represents a portal administrator or member account.
// This is a pure domain entity - transport DTOs live in the handler layer.
type User struct {
	ID           id.UserID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Active       bool

	// Verification and reset lifecycle. A user signs in only after the
	// one-time verification token has been consumed.
	VerifiedOn        *time.Time
	VerificationToken string
	ResetToken        string
	ResetTokenExpires *time.Time

	CreatedOn time.Time
}

// IsVerified reports whether the account completed email verification.
func (u *User) IsVerified() bool {
	return u.VerifiedOn != nil
}

// MarkVerified consumes the verification token and stamps the verification
// time. Returns false if the account was already verified.
func (u *User) MarkVerified(at time.Time) bool {
	if u.IsVerified() {
		return false
	}
	u.VerifiedOn = &at
	u.VerificationToken = ""
	return true
}

// SetResetToken stores a one-time password reset token with its expiry.
func (u *User) SetResetToken(token string, expires time.Time) {
	u.ResetToken = token
	u.ResetTokenExpires = &expires
}

// ClearResetToken removes reset state after a completed or abandoned reset.
func (u *User) ClearResetToken() {
	u.ResetToken = ""
	u.ResetTokenExpires = nil
}

// ResetTokenValid reports whether the stored reset token matches and has not
// expired.
func (u *User) ResetTokenValid(token string, now time.Time) bool {
	if u.ResetToken == "" || u.ResetToken != token {
		return false
	}
	if u.ResetTokenExpires == nil {
		return false
	}
	return now.Before(*u.ResetTokenExpires)
}

// NewUser constructs a User and enforces basic invariants.
func NewUser(userID id.UserID, email, firstName, lastName string, createdOn time.Time) (*User, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email cannot be empty")
	}
	return &User{
		ID:        userID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Active:    true,
		CreatedOn: createdOn,
	}, nil
}

// Tenant is the minimal tenant aggregate the authorization checker needs.
type Tenant struct {
	ID        id.TenantID
	Name      string
	CreatedOn time.Time
}

// TenantRoleAssignment binds a user to exactly one role within a tenant.
// Invariant: (UserID, TenantID) is unique; a user may hold different roles in
// different tenants.
type TenantRoleAssignment struct {
	UserID    id.UserID
	TenantID  id.TenantID
	RoleID    id.RoleID
	RoleName  string
	CreatedOn time.Time
}

// RefreshToken is an opaque long-lived credential subject to rotation.
// Each rotation revokes the old token with reason "replaced" and stamps
// ReplacedByToken, forming a simple forward chain with no branching.
// Re-presenting a revoked token signals possible theft of the chain.
type RefreshToken struct {
	Token       string
	UserID      id.UserID
	ExpiresOn   time.Time
	CreatedOn   time.Time
	CreatedByIP string

	RevokedOn       *time.Time
	RevokedByIP     string
	ReplacedByToken string
	ReasonRevoked   string
}

// IsExpired reports whether the token's lifetime has elapsed.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresOn)
}

// IsRevoked reports whether revocation metadata has been stamped.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedOn != nil
}

// IsActive reports whether the token may still be exchanged: neither revoked
// nor expired.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// Revoke stamps revocation metadata. Returns false if already revoked; the
// original revocation record is never overwritten.
func (t *RefreshToken) Revoke(at time.Time, ip, reason, replacedBy string) bool {
	if t.IsRevoked() {
		return false
	}
	t.RevokedOn = &at
	t.RevokedByIP = ip
	t.ReasonRevoked = reason
	t.ReplacedByToken = replacedBy
	return true
}

// NewRefreshToken constructs a RefreshToken with invariant checks.
func NewRefreshToken(token string, userID id.UserID, originIP string, createdOn, expiresOn time.Time) (*RefreshToken, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "refresh token cannot be empty")
	}
	if expiresOn.Before(createdOn) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "refresh token expiry must be after creation")
	}
	return &RefreshToken{
		Token:       token,
		UserID:      userID,
		ExpiresOn:   expiresOn,
		CreatedOn:   createdOn,
		CreatedByIP: originIP,
	}, nil
}

// Session maps an opaque cookie value to the caller's current token pair,
// scoped by user and origin IP. At most one live session exists per
// (UserID, OriginIP); a new sign-in from the same origin overwrites it.
type Session struct {
	ID           id.SessionID
	UserID       id.UserID
	AccessToken  string
	RefreshToken string
	OriginIP     string
	DeviceName   string
	CreatedOn    time.Time
}

// ApplyTokens replaces the session's token pair and refreshes its timestamp.
func (s *Session) ApplyTokens(accessToken, refreshToken string, at time.Time) {
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.CreatedOn = at
}

// NewSession constructs a Session and validates invariants.
func NewSession(sessionID id.SessionID, userID id.UserID, accessToken, refreshToken, originIP string, createdOn time.Time) (*Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires both tokens")
	}
	return &Session{
		ID:           sessionID,
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		OriginIP:     originIP,
		CreatedOn:    createdOn,
	}, nil
}
