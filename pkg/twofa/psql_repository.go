package twofa

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the subset of pgx used by the repository so it can be
// backed by a pool or a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists second-factor state in Postgres.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a Postgres-backed repository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{db: tx}
}

const profileColumns = `user_id, enabled, method, totp_secret, contact,
	COALESCE(temp_code, ''), temp_code_expires_at, temp_code_attempts, created_at, updated_at`

func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM two_factor_auth
		WHERE user_id = $1`,
		userID)
	return scanProfile(row)
}

func (r *PostgresRepository) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO two_factor_auth (user_id, enabled, method, totp_secret, contact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			method = EXCLUDED.method,
			totp_secret = EXCLUDED.totp_secret,
			contact = EXCLUDED.contact,
			updated_at = NOW()
		RETURNING `+profileColumns,
		profile.UserID, profile.Enabled, string(profile.Method), profile.TOTPSecret, profile.Contact)
	return scanProfile(row)
}

func (r *PostgresRepository) SetTempCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE two_factor_auth
		SET temp_code = $2, temp_code_expires_at = $3, temp_code_attempts = 0, updated_at = NOW()
		WHERE user_id = $1`,
		userID, code, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementTempCodeAttempts(ctx context.Context, userID uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE two_factor_auth
		SET temp_code_attempts = temp_code_attempts + 1
		WHERE user_id = $1
		RETURNING temp_code_attempts`,
		userID).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *PostgresRepository) ClearTempCode(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE two_factor_auth
		SET temp_code = NULL, temp_code_expires_at = NULL, temp_code_attempts = 0, updated_at = NOW()
		WHERE user_id = $1`,
		userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *PostgresRepository) SetEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE two_factor_auth
		SET enabled = $2, updated_at = NOW()
		WHERE user_id = $1`,
		userID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateBackupCodes(ctx context.Context, userID uuid.UUID, codeHashes []string) error {
	for _, hash := range codeHashes {
		_, err := r.db.Exec(ctx, `
			INSERT INTO two_factor_backup_code (id, user_id, code_hash, is_used, created_at)
			VALUES ($1, $2, $3, false, NOW())`,
			uuid.New(), userID, hash)
		if err != nil {
			return err
		}
	}
	return nil
}

// ConsumeBackupCode marks the matching unused code as used. The single
// conditional update guarantees at most one caller wins for a given code.
func (r *PostgresRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE two_factor_backup_code
		SET is_used = true, used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND is_used = false`,
		userID, codeHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) CountUnusedBackupCodes(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM two_factor_backup_code
		WHERE user_id = $1 AND is_used = false`,
		userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresRepository) DeleteUnusedBackupCodes(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM two_factor_backup_code
		WHERE user_id = $1 AND is_used = false`,
		userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteProfile(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM two_factor_backup_code WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		DELETE FROM two_factor_auth WHERE user_id = $1`, userID)
	return err
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	var method string
	var expiresAt sql.NullTime
	err := row.Scan(&p.UserID, &p.Enabled, &method, &p.TOTPSecret, &p.Contact,
		&p.TempCode, &expiresAt, &p.TempCodeAttempts, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	p.Method = Method(method)
	if expiresAt.Valid {
		t := expiresAt.Time
		p.TempCodeExpiresAt = &t
	}
	return p, nil
}
