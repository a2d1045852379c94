package tenant

import (
	"context"
	"strings"
	"sync"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
// Services should check for this error using errors.Is(err, tenant.ErrNotFound).
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

// ErrDuplicateName is returned when a tenant name is already taken.
var ErrDuplicateName = dErrors.New(dErrors.CodeConflict, "tenant name already exists")

type assignmentKey struct {
	userID   id.UserID
	tenantID id.TenantID
}

// InMemoryStore holds tenants and role assignments in process memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	tenants     map[id.TenantID]*models.Tenant
	assignments map[assignmentKey]*models.TenantRoleAssignment
}

// NewInMemory constructs an empty in-memory tenant store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		tenants:     make(map[id.TenantID]*models.Tenant),
		assignments: make(map[assignmentKey]*models.TenantRoleAssignment),
	}
}

func (s *InMemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return dErrors.New(dErrors.CodeValidation, "tenant is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Name, tenant.Name) {
			return ErrDuplicateName
		}
	}
	copied := *tenant
	s.tenants[tenant.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

// FindTenantByName resolves a tenant by its unique name, case-insensitively.
// The system tenant is looked up this way at startup.
func (s *InMemoryStore) FindTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tenant := range s.tenants {
		if strings.EqualFold(tenant.Name, name) {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// UpsertAssignment stores a role assignment; a user holds at most one role
// per tenant, so an existing (user, tenant) row is overwritten.
func (s *InMemoryStore) UpsertAssignment(ctx context.Context, assignment *models.TenantRoleAssignment) error {
	if assignment == nil {
		return dErrors.New(dErrors.CodeValidation, "assignment is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *assignment
	s.assignments[assignmentKey{userID: assignment.UserID, tenantID: assignment.TenantID}] = &copied
	return nil
}

// FindAssignment returns the user's role within a tenant. This is the
// persisted source of truth consulted alongside token claims.
func (s *InMemoryStore) FindAssignment(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*models.TenantRoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignment, ok := s.assignments[assignmentKey{userID: userID, tenantID: tenantID}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *assignment
	return &copied, nil
}

// ListAssignmentsForUser returns every tenant role the user holds; used to
// build token claims at sign-in and refresh.
func (s *InMemoryStore) ListAssignmentsForUser(ctx context.Context, userID id.UserID) ([]*models.TenantRoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignments := make([]*models.TenantRoleAssignment, 0)
	for _, assignment := range s.assignments {
		if assignment.UserID == userID {
			copied := *assignment
			assignments = append(assignments, &copied)
		}
	}
	return assignments, nil
}

func (s *InMemoryStore) DeleteAssignment(ctx context.Context, userID id.UserID, tenantID id.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{userID: userID, tenantID: tenantID}
	if _, ok := s.assignments[key]; !ok {
		return ErrNotFound
	}
	delete(s.assignments, key)
	return nil
}
