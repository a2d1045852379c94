package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
)

// PostgresStore persists tenants and role assignments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	query := `INSERT INTO tenants (id, name, created_on) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, query, uuid.UUID(tenant.ID), tenant.Name, tenant.CreatedOn)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `SELECT id, name, created_on FROM tenants WHERE id = $1`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)))
}

func (s *PostgresStore) FindTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	query := `SELECT id, name, created_on FROM tenants WHERE LOWER(name) = LOWER($1)`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, name))
}

func (s *PostgresStore) scanTenant(row *sql.Row) (*models.Tenant, error) {
	var (
		tenant models.Tenant
		rawID  uuid.UUID
	)
	err := row.Scan(&rawID, &tenant.Name, &tenant.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	tenant.ID = id.TenantID(rawID)
	return &tenant, nil
}

const assignmentColumns = `a.user_id, a.tenant_id, a.role_id, r.name, a.created_on`

const assignmentJoin = `
	FROM tenant_role_assignments a
	JOIN roles r ON r.id = a.role_id
`

func (s *PostgresStore) UpsertAssignment(ctx context.Context, assignment *models.TenantRoleAssignment) error {
	if assignment == nil {
		return fmt.Errorf("assignment is required")
	}
	query := `
		INSERT INTO tenant_role_assignments (user_id, tenant_id, role_id, created_on)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET role_id = EXCLUDED.role_id
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(assignment.UserID),
		uuid.UUID(assignment.TenantID),
		uuid.UUID(assignment.RoleID),
		assignment.CreatedOn,
	)
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAssignment(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*models.TenantRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + assignmentJoin + `WHERE a.user_id = $1 AND a.tenant_id = $2`
	assignment, err := scanAssignment(s.db.QueryRowContext(ctx, query, uuid.UUID(userID), uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return assignment, nil
}

func (s *PostgresStore) ListAssignmentsForUser(ctx context.Context, userID id.UserID) ([]*models.TenantRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + assignmentJoin + `WHERE a.user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*models.TenantRoleAssignment, 0)
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return assignments, nil
}

func (s *PostgresStore) DeleteAssignment(ctx context.Context, userID id.UserID, tenantID id.TenantID) error {
	query := `DELETE FROM tenant_role_assignments WHERE user_id = $1 AND tenant_id = $2`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(userID), uuid.UUID(tenantID))
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*models.TenantRoleAssignment, error) {
	var (
		assignment  models.TenantRoleAssignment
		rawUserID   uuid.UUID
		rawTenantID uuid.UUID
		rawRoleID   uuid.UUID
	)
	err := row.Scan(&rawUserID, &rawTenantID, &rawRoleID, &assignment.RoleName, &assignment.CreatedOn)
	if err != nil {
		return nil, err
	}
	assignment.UserID = id.UserID(rawUserID)
	assignment.TenantID = id.TenantID(rawTenantID)
	assignment.RoleID = id.RoleID(rawRoleID)
	return &assignment, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
