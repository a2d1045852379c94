package httptransport

import (
	"portico/internal/identity/models"
	"portico/internal/identity/service"
)

// UserResponse is the wire shape returned by sign-in and refresh. The raw
// tokens never appear here; the session cookie is the only credential the
// browser holds.
type UserResponse struct {
	UserID      string                   `json:"userId"`
	FirstName   string                   `json:"firstName"`
	LastName    string                   `json:"lastName"`
	Email       string                   `json:"email"`
	TenantRoles []models.TenantRoleClaim `json:"tenantRoles"`
	Active      bool                     `json:"active"`
	Verified    bool                     `json:"verified"`
}

func userResponseFrom(result *service.Result) UserResponse {
	roles := result.TenantRoles
	if roles == nil {
		roles = []models.TenantRoleClaim{}
	}
	return UserResponse{
		UserID:      result.User.ID.String(),
		FirstName:   result.User.FirstName,
		LastName:    result.User.LastName,
		Email:       result.User.Email,
		TenantRoles: roles,
		Active:      result.User.Active,
		Verified:    result.User.IsVerified(),
	}
}
