package sessions

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

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL session repository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, jti, trusted_device_id, device_info, ip_address, user_agent, expires_at, revoked_at, last_activity, created_at`

func (r *PostgresRepository) Create(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	query := `
		INSERT INTO user_session (user_id, jti, trusted_device_id, device_info, ip_address, user_agent, expires_at, last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + sessionColumns
	row := r.db.QueryRow(ctx, query,
		req.UserID, req.JTI, req.TrustedDeviceID, req.DeviceInfo,
		req.IPAddress, req.UserAgent, req.ExpiresAt,
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_session WHERE id = $1`
	return scanSession(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetByJTI(ctx context.Context, jti string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_session WHERE jti = $1`
	return scanSession(r.db.QueryRow(ctx, query, jti))
}

func (r *PostgresRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_session
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()
		ORDER BY last_activity DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		var session Session
		err := rows.Scan(
			&session.ID, &session.UserID, &session.JTI, &session.TrustedDeviceID,
			&session.DeviceInfo, &session.IPAddress, &session.UserAgent,
			&session.ExpiresAt, &session.RevokedAt, &session.LastActivity, &session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE user_session SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already revoked; verify the session exists.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) RevokeAllExcept(ctx context.Context, userID uuid.UUID, exceptID uuid.UUID) (int, error) {
	query := `
		UPDATE user_session
		SET revoked_at = NOW()
		WHERE user_id = $1 AND id != $2 AND revoked_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) UpdateActivity(ctx context.Context, jti string) error {
	query := `UPDATE user_session SET last_activity = NOW() WHERE jti = $1`
	tag, err := r.db.Exec(ctx, query, jti)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) IsValid(ctx context.Context, jti string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_session
			WHERE jti = $1 AND revoked_at IS NULL AND expires_at > NOW()
		)
	`
	var valid bool
	if err := r.db.QueryRow(ctx, query, jti).Scan(&valid); err != nil {
		return false, fmt.Errorf("failed to check session validity: %w", err)
	}
	return valid, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_session WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var session Session
	err := row.Scan(
		&session.ID, &session.UserID, &session.JTI, &session.TrustedDeviceID,
		&session.DeviceInfo, &session.IPAddress, &session.UserAgent,
		&session.ExpiresAt, &session.RevokedAt, &session.LastActivity, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &session, nil
}
