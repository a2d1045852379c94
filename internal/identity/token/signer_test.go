package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

type SignerSuite struct {
	suite.Suite
	signer *Signer
	user   *models.User
	now    time.Time
}

func (s *SignerSuite) SetupTest() {
	signer, err := NewSigner("test-signing-key", "portico", 15*time.Minute)
	s.Require().NoError(err)
	s.signer = signer
	s.now = time.Now()
	s.user = &models.User{
		ID:        id.NewUserID(),
		Email:     "admin@example.com",
		FirstName: "Ada",
		LastName:  "Admin",
	}
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerSuite))
}

func (s *SignerSuite) TestNewSigner_RejectsEmptyKey() {
	_, err := NewSigner("", "portico", time.Minute)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *SignerSuite) TestSignAndParse_RoundTrip() {
	tenantID := id.NewTenantID()
	claims := []models.TenantRoleClaim{
		{TenantID: tenantID, RoleID: id.NewRoleID(), RoleName: models.RoleNameSystemAdmin},
	}

	signed, err := s.signer.Sign(s.user, claims, s.now)
	s.Require().NoError(err)
	s.NotEmpty(signed)

	parsed, err := s.signer.Parse(signed)
	s.Require().NoError(err)
	s.Equal(s.user.ID.String(), parsed.Subject)
	s.Equal("Ada Admin", parsed.Name)
	s.Equal(s.user.Email, parsed.Email)

	subject, err := parsed.SubjectUserID()
	s.Require().NoError(err)
	s.Equal(s.user.ID, subject)

	roles, err := parsed.DecodeTenantRoles()
	s.Require().NoError(err)
	s.Require().Len(roles, 1)
	s.Equal(tenantID, roles[0].TenantID)
	s.Equal(models.RoleNameSystemAdmin, roles[0].RoleName)
}

func (s *SignerSuite) TestSign_DeterministicForFixedInputs() {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first, err := s.signer.Sign(s.user, nil, at)
	s.Require().NoError(err)
	second, err := s.signer.Sign(s.user, nil, at)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *SignerSuite) TestParse_RejectsExpired() {
	signed, err := s.signer.Sign(s.user, nil, s.now.Add(-time.Hour))
	s.Require().NoError(err)

	_, err = s.signer.Parse(signed)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *SignerSuite) TestParse_RejectsWrongKey() {
	other, err := NewSigner("another-key", "portico", 15*time.Minute)
	s.Require().NoError(err)

	signed, err := other.Sign(s.user, nil, s.now)
	s.Require().NoError(err)

	_, err = s.signer.Parse(signed)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *SignerSuite) TestParse_RejectsGarbage() {
	_, err := s.signer.Parse("")
	s.Error(err)
	_, err = s.signer.Parse("not.a.token")
	s.Error(err)
}

type GeneratorSuite struct {
	suite.Suite
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) TestGenerate_PairwiseDistinct() {
	gen := NewGenerator(func(context.Context, string) (bool, error) { return false, nil })

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := gen.Generate(context.Background())
		s.Require().NoError(err)
		s.Len(tok, 128) // 64 bytes hex-encoded
		_, dup := seen[tok]
		s.False(dup)
		seen[tok] = struct{}{}
	}
}

func (s *GeneratorSuite) TestGenerate_RetriesOnCollision() {
	collisions := 0
	var first string
	gen := NewGenerator(func(_ context.Context, candidate string) (bool, error) {
		if collisions == 0 {
			collisions++
			first = candidate
			return true, nil
		}
		return false, nil
	})

	tok, err := gen.Generate(context.Background())
	s.Require().NoError(err)
	s.Equal(1, collisions)
	s.NotEqual(first, tok)
}

func (s *GeneratorSuite) TestGenerate_BoundedRetries() {
	calls := 0
	gen := NewGenerator(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})

	_, err := gen.Generate(context.Background())
	s.Require().Error(err)
	s.Equal(maxAttempts, calls)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *GeneratorSuite) TestGenerate_PropagatesProbeError() {
	probeErr := errors.New("store down")
	gen := NewGenerator(func(context.Context, string) (bool, error) {
		return false, probeErr
	})

	_, err := gen.Generate(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
