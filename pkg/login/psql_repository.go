package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX allows use of either a database pool or a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresCredentialRepository implements CredentialRepository using PostgreSQL.
type PostgresCredentialRepository struct {
	db DBTX
}

// NewPostgresCredentialRepository creates a new PostgreSQL credential repository.
func NewPostgresCredentialRepository(db DBTX) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PostgresCredentialRepository) WithTx(tx DBTX) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: tx}
}

func (r *PostgresCredentialRepository) Create(ctx context.Context, cred Credential) (Credential, error) {
	if cred.UserID == uuid.Nil {
		cred.UserID = uuid.New()
	}

	query := `
		INSERT INTO user_credential (user_id, username, email, password_hash, token_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		cred.UserID, cred.Username, cred.Email, cred.PasswordHash,
		cred.TokenVersion, cred.IsActive,
	).Scan(&cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to create credential: %w", err)
	}
	return cred, nil
}

func (r *PostgresCredentialRepository) GetByLogin(ctx context.Context, usernameOrEmail string) (Credential, error) {
	query := `
		SELECT user_id, username, email, password_hash, token_version, is_active, created_at, updated_at
		FROM user_credential
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
	`
	return r.scanCredential(r.db.QueryRow(ctx, query, usernameOrEmail))
}

func (r *PostgresCredentialRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (Credential, error) {
	query := `
		SELECT user_id, username, email, password_hash, token_version, is_active, created_at, updated_at
		FROM user_credential
		WHERE user_id = $1
	`
	return r.scanCredential(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresCredentialRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `
		UPDATE user_credential
		SET password_hash = $2, token_version = token_version + 1, updated_at = NOW()
		WHERE user_id = $1
	`
	tag, err := r.db.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *PostgresCredentialRepository) GetTokenVersion(ctx context.Context, userID uuid.UUID) (int64, error) {
	var version int64
	err := r.db.QueryRow(ctx, `SELECT token_version FROM user_credential WHERE user_id = $1`, userID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCredentialNotFound
		}
		return 0, fmt.Errorf("failed to get token version: %w", err)
	}
	return version, nil
}

func (r *PostgresCredentialRepository) scanCredential(row pgx.Row) (Credential, error) {
	var cred Credential
	err := row.Scan(
		&cred.UserID, &cred.Username, &cred.Email, &cred.PasswordHash,
		&cred.TokenVersion, &cred.IsActive, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("failed to scan credential: %w", err)
	}
	return cred, nil
}
