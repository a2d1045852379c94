package models

import (
	"encoding/json"

	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// TenantRoleClaim asserts what the bearer is authorized to do in one tenant.
// A user's full set travels inside the signed access token as a single
// serialized claim value; this file is the only serialize/deserialize
// boundary, so the token layer and the authorization checker agree on one
// schema.
type TenantRoleClaim struct {
	TenantID id.TenantID `json:"tenantId"`
	RoleID   id.RoleID   `json:"roleId"`
	RoleName string      `json:"roleName"`
}

// ClaimsFromAssignments projects persisted assignments into claim tuples.
func ClaimsFromAssignments(assignments []TenantRoleAssignment) []TenantRoleClaim {
	claims := make([]TenantRoleClaim, 0, len(assignments))
	for _, a := range assignments {
		claims = append(claims, TenantRoleClaim{
			TenantID: a.TenantID,
			RoleID:   a.RoleID,
			RoleName: a.RoleName,
		})
	}
	return claims
}

// EncodeTenantRoleClaims serializes the claim list for embedding in a token.
func EncodeTenantRoleClaims(claims []TenantRoleClaim) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not encode tenant role claims")
	}
	return string(raw), nil
}

// DecodeTenantRoleClaims parses the serialized claim list carried in a token.
// An empty value decodes to an empty set.
func DecodeTenantRoleClaims(serialized string) ([]TenantRoleClaim, error) {
	if serialized == "" {
		return nil, nil
	}
	var claims []TenantRoleClaim
	if err := json.Unmarshal([]byte(serialized), &claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed tenant role claims")
	}
	return claims, nil
}

// FindClaim returns the claim for the given tenant, if present.
func FindClaim(claims []TenantRoleClaim, tenantID id.TenantID) (TenantRoleClaim, bool) {
	for _, c := range claims {
		if c.TenantID == tenantID {
			return c, true
		}
	}
	return TenantRoleClaim{}, false
}
