package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, active,
	verified_on, verification_token, reset_token, reset_token_expires, created_on`

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Active,
		nullTime(user.VerifiedOn),
		nullString(user.VerificationToken),
		nullString(user.ResetToken),
		nullTime(user.ResetTokenExpires),
		user.CreatedOn,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
		    active = $6, verified_on = $7, verification_token = $8,
		    reset_token = $9, reset_token_expires = $10
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Active,
		nullTime(user.VerifiedOn),
		nullString(user.VerificationToken),
		nullString(user.ResetToken),
		nullTime(user.ResetTokenExpires),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.findOne(ctx, query, uuid.UUID(userID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return s.findOne(ctx, query, email)
}

func (s *PostgresStore) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_token = $1`
	return s.findOne(ctx, query, token)
}

func (s *PostgresStore) FindByResetToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token = $1`
	return s.findOne(ctx, query, token)
}

// TokenExists probes the verification and reset token columns for collision
// checking during token generation.
func (s *PostgresStore) TokenExists(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE verification_token = $1 OR reset_token = $1
		)
	`
	if err := s.db.QueryRowContext(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("user token exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user              models.User
		rawID             uuid.UUID
		verifiedOn        sql.NullTime
		verificationToken sql.NullString
		resetToken        sql.NullString
		resetTokenExpires sql.NullTime
	)
	err := row.Scan(
		&rawID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Active,
		&verifiedOn,
		&verificationToken,
		&resetToken,
		&resetTokenExpires,
		&user.CreatedOn,
	)
	if err != nil {
		return nil, err
	}
	user.ID = id.UserID(rawID)
	if verifiedOn.Valid {
		t := verifiedOn.Time
		user.VerifiedOn = &t
	}
	user.VerificationToken = verificationToken.String
	user.ResetToken = resetToken.String
	if resetTokenExpires.Valid {
		t := resetTokenExpires.Time
		user.ResetTokenExpires = &t
	}
	return &user, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
