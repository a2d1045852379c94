// Package authz evaluates the portal's authorization predicates. Every
// predicate consults two sources and requires both to agree: the role claims
// carried in the caller's access token and the persisted role assignments.
// A stale claim, however it was obtained, never outranks the database.
package authz

import (
	"context"
	"log/slog"
	"sync"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// Denial explains why a predicate answered false. Reasons are for logs and
// audit only; callers surface a uniform forbidden error.
type Denial string

const (
	DenialNone             Denial = ""
	DenialNoClaim          Denial = "no_claim"
	DenialNoAssignment     Denial = "no_assignment"
	DenialRoleMismatch     Denial = "role_mismatch"
	DenialTenantNotFound   Denial = "tenant_not_found"
	DenialSystemTenant     Denial = "system_tenant"
	DenialNotSelf          Denial = "not_self"
	DenialSystemUnresolved Denial = "system_tenant_unresolved"
)

// ErrForbidden is the uniform error surfaced for any denial.
var ErrForbidden = dErrors.New(dErrors.CodeForbidden, "insufficient permissions")

// AssignmentFinder is the persisted source of truth for tenant roles.
type AssignmentFinder interface {
	FindAssignment(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*models.TenantRoleAssignment, error)
}

// TenantFinder resolves tenants, by ID for predicate checks and by name to
// locate the system tenant.
type TenantFinder interface {
	FindTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindTenantByName(ctx context.Context, name string) (*models.Tenant, error)
}

// SystemTenantName is the well-known name of the tenant whose administrators
// hold portal-wide authority.
const SystemTenantName = "System"

// Policy tunes predicate behavior.
type Policy struct {
	// TenantAdminOverride lets a tenant administrator act on any user
	// within their own tenant, not only on themselves.
	TenantAdminOverride bool
}

// Subject is the authenticated caller as seen by the predicates: the user ID
// from the token subject and the decoded tenant role claims.
type Subject struct {
	UserID id.UserID
	Claims []models.TenantRoleClaim
}

// Checker evaluates predicates against claims and persisted assignments.
type Checker struct {
	assignments AssignmentFinder
	tenants     TenantFinder
	policy      Policy
	logger      *slog.Logger

	systemMu       sync.Mutex
	systemID       id.TenantID
	systemResolved bool
}

// Option configures the Checker.
type Option func(*Checker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPolicy overrides the default policy.
func WithPolicy(policy Policy) Option {
	return func(c *Checker) {
		c.policy = policy
	}
}

// New constructs a Checker. By default only the target user and system
// administrators pass IsSelfOrAdmin; WithPolicy extends that to tenant
// administrators.
func New(assignments AssignmentFinder, tenants TenantFinder, opts ...Option) *Checker {
	c := &Checker{
		assignments: assignments,
		tenants:     tenants,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// systemTenant resolves the system tenant and memoizes the ID on success
// only. A lookup failure fails the current check closed but is retried on
// the next one, so a system tenant seeded after startup starts resolving
// without a restart.
func (c *Checker) systemTenant(ctx context.Context) (id.TenantID, error) {
	c.systemMu.Lock()
	defer c.systemMu.Unlock()

	if c.systemResolved {
		return c.systemID, nil
	}
	tenant, err := c.tenants.FindTenantByName(ctx, SystemTenantName)
	if err != nil {
		c.logger.Error("system tenant resolution failed", "error", err)
		return id.TenantID{}, err
	}
	c.systemID = tenant.ID
	c.systemResolved = true
	return c.systemID, nil
}

// IsSystemAdmin reports whether the subject holds the system administrator
// role in the system tenant, in both the token claims and the database.
func (c *Checker) IsSystemAdmin(ctx context.Context, subject Subject) (bool, Denial) {
	systemID, err := c.systemTenant(ctx)
	if err != nil {
		return false, DenialSystemUnresolved
	}
	return c.holdsRole(ctx, subject, systemID, models.RoleNameSystemAdmin)
}

// IsTenantAdmin reports whether the subject administers the given tenant.
// The tenant must exist and must not be the system tenant; system-level
// authority goes through IsSystemAdmin instead. System administrators do not
// implicitly pass; callers that accept either role check both predicates.
func (c *Checker) IsTenantAdmin(ctx context.Context, subject Subject, tenantID id.TenantID) (bool, Denial) {
	if _, err := c.tenants.FindTenant(ctx, tenantID); err != nil {
		return false, DenialTenantNotFound
	}
	if systemID, err := c.systemTenant(ctx); err == nil && tenantID == systemID {
		return false, DenialSystemTenant
	}
	return c.holdsRole(ctx, subject, tenantID, models.RoleNameTenantAdmin)
}

// IsSelfOrAdmin reports whether the subject may act on the target user's
// resources within a tenant: the subject is the target, a system
// administrator, or (policy permitting) an administrator of that tenant.
func (c *Checker) IsSelfOrAdmin(ctx context.Context, subject Subject, targetUserID id.UserID, tenantID id.TenantID) (bool, Denial) {
	if subject.UserID == targetUserID {
		return true, DenialNone
	}
	if ok, _ := c.IsSystemAdmin(ctx, subject); ok {
		return true, DenialNone
	}
	if c.policy.TenantAdminOverride {
		if ok, _ := c.IsTenantAdmin(ctx, subject, tenantID); ok {
			return true, DenialNone
		}
	}
	return false, DenialNotSelf
}

// holdsRole is the dual check behind every predicate. The claim gate is
// cheap and catches most denials; the assignment gate catches revocations
// that postdate the token.
func (c *Checker) holdsRole(ctx context.Context, subject Subject, tenantID id.TenantID, roleName string) (bool, Denial) {
	claim, ok := models.FindClaim(subject.Claims, tenantID)
	if !ok {
		return false, DenialNoClaim
	}
	if claim.RoleName != roleName {
		return false, DenialRoleMismatch
	}

	assignment, err := c.assignments.FindAssignment(ctx, subject.UserID, tenantID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			c.logger.Error("assignment lookup failed",
				"user_id", subject.UserID.String(),
				"tenant_id", tenantID.String(),
				"error", err,
			)
		}
		return false, DenialNoAssignment
	}
	if assignment.RoleName != roleName {
		return false, DenialRoleMismatch
	}
	return true, DenialNone
}
