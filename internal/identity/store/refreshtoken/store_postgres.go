package refreshtoken

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
)

// PostgresStore persists refresh tokens in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed refresh token store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tokenColumns = `token, user_id, expires_on, created_on, created_by_ip,
	revoked_on, revoked_by_ip, replaced_by_token, reason_revoked`

func (s *PostgresStore) Create(ctx context.Context, token *models.RefreshToken) error {
	if token == nil {
		return fmt.Errorf("refresh token is required")
	}
	query := `
		INSERT INTO refresh_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		token.Token,
		uuid.UUID(token.UserID),
		token.ExpiresOn,
		token.CreatedOn,
		token.CreatedByIP,
		nullTime(token.RevokedOn),
		nullString(token.RevokedByIP),
		nullString(token.ReplacedByToken),
		nullString(token.ReasonRevoked),
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1`
	record, err := scanToken(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return record, nil
}

// Exists probes for a token's presence; used for collision checking during
// token generation.
func (s *PostgresStore) Exists(ctx context.Context, token string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = $1)`
	if err := s.db.QueryRowContext(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("refresh token exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Update(ctx context.Context, token *models.RefreshToken) error {
	if token == nil {
		return fmt.Errorf("refresh token is required")
	}
	query := `
		UPDATE refresh_tokens
		SET revoked_on = $2, revoked_by_ip = $3, replaced_by_token = $4, reason_revoked = $5
		WHERE token = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		token.Token,
		nullTime(token.RevokedOn),
		nullString(token.RevokedByIP),
		nullString(token.ReplacedByToken),
		nullString(token.ReasonRevoked),
	)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update refresh token rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Execute serializes rotation of a single token through a row lock: the row
// is selected FOR UPDATE inside a transaction, validated, mutated and written
// back. Of two racing refreshes exactly one commits the mutation; the other
// observes the token as already revoked-with-replacement.
func (s *PostgresStore) Execute(
	ctx context.Context,
	token string,
	validate func(*models.RefreshToken) error,
	mutate func(*models.RefreshToken),
) (*models.RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin refresh token tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1 FOR UPDATE`
	record, err := scanToken(tx.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock refresh token: %w", err)
	}

	if err := validate(record); err != nil {
		// Surface the stale record for replay detection; the transaction
		// rolls back without writes.
		return record, err
	}

	mutate(record)

	update := `
		UPDATE refresh_tokens
		SET revoked_on = $2, revoked_by_ip = $3, replaced_by_token = $4, reason_revoked = $5
		WHERE token = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		record.Token,
		nullTime(record.RevokedOn),
		nullString(record.RevokedByIP),
		nullString(record.ReplacedByToken),
		nullString(record.ReasonRevoked),
	); err != nil {
		return nil, fmt.Errorf("mutate refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit refresh token tx: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*models.RefreshToken, 0)
	for rows.Next() {
		record, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		tokens = append(tokens, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return tokens, nil
}

// DeleteInactiveBefore removes tokens that are inactive (revoked or expired)
// and were created before the cutoff.
func (s *PostgresStore) DeleteInactiveBefore(ctx context.Context, cutoff, now time.Time) (int, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE created_on <= $1
		  AND (revoked_on IS NOT NULL OR expires_on <= $2)
	`
	res, err := s.db.ExecContext(ctx, query, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("delete inactive refresh tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete inactive refresh tokens rows: %w", err)
	}
	return int(rows), nil
}

// DeleteInactiveForUser removes a single user's inactive tokens past the cutoff.
func (s *PostgresStore) DeleteInactiveForUser(ctx context.Context, userID id.UserID, cutoff, now time.Time) (int, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
		  AND created_on <= $2
		  AND (revoked_on IS NOT NULL OR expires_on <= $3)
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(userID), cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens rows: %w", err)
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.RefreshToken, error) {
	var (
		record     models.RefreshToken
		rawUserID  uuid.UUID
		revokedOn  sql.NullTime
		revokedIP  sql.NullString
		replacedBy sql.NullString
		reason     sql.NullString
	)
	err := row.Scan(
		&record.Token,
		&rawUserID,
		&record.ExpiresOn,
		&record.CreatedOn,
		&record.CreatedByIP,
		&revokedOn,
		&revokedIP,
		&replacedBy,
		&reason,
	)
	if err != nil {
		return nil, err
	}
	record.UserID = id.UserID(rawUserID)
	if revokedOn.Valid {
		t := revokedOn.Time
		record.RevokedOn = &t
	}
	record.RevokedByIP = revokedIP.String
	record.ReplacedByToken = replacedBy.String
	record.ReasonRevoked = reason.String
	return &record, nil
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
