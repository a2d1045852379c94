// Package token issues and parses signed access tokens and generates the
// opaque random tokens used for refresh, verification and password reset.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// AccessClaims represents the JWT claims for our access tokens. The tenant
// role set travels as one serialized claim value; see models.TenantRoleClaim
// for the schema shared with the authorization checker.
type AccessClaims struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	TenantRoles string `json:"tenant_roles,omitempty"`
	jwt.RegisteredClaims
}

// Signer handles access token creation and validation with a symmetric key.
type Signer struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

// NewSigner constructs a Signer. An empty signing key is a configuration
// error and is rejected here rather than producing unusable tokens later.
func NewSigner(signingKey, issuer string, tokenTTL time.Duration) (*Signer, error) {
	if signingKey == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "signing key cannot be empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &Signer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}, nil
}

// TokenTTL exposes the configured access token lifetime.
func (s *Signer) TokenTTL() time.Duration { return s.tokenTTL }

// Sign produces a signed access token for the user carrying identity and
// tenant-role claims. Deterministic given identical inputs and time; no side
// effects.
func (s *Signer) Sign(user *models.User, tenantRoles []models.TenantRoleClaim, now time.Time) (string, error) {
	serialized, err := models.EncodeTenantRoleClaims(tenantRoles)
	if err != nil {
		return "", err
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Name:        user.FirstName + " " + user.LastName,
		Email:       user.Email,
		TenantRoles: serialized,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})

	signed, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign access token")
	}
	return signed, nil
}

// Parse validates the signature and standard claims of an access token and
// returns its claims.
func (s *Signer) Parse(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "empty token")
	}

	claims := new(AccessClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unexpected signing algorithm")
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token signature")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// ParseExpired validates the signature of an access token but tolerates an
// elapsed expiry. The refresh flow uses it to read the identity claim out of
// the session's stored access token, which is normally expired by the time a
// refresh happens.
func (s *Signer) ParseExpired(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "empty token")
	}

	claims := new(AccessClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unexpected signing algorithm")
		}
		return s.signingKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// Subject parses the token subject into a typed user ID.
func (c *AccessClaims) SubjectUserID() (id.UserID, error) {
	return id.ParseUserID(c.Subject)
}

// DecodeTenantRoles parses the serialized tenant role claim set.
func (c *AccessClaims) DecodeTenantRoles() ([]models.TenantRoleClaim, error) {
	return models.DecodeTenantRoleClaims(c.TenantRoles)
}
