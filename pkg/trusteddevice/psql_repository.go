package trusteddevice

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

// NewPostgresRepository creates a new PostgreSQL trusted-device repository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PostgresRepository) WithTx(tx DBTX) *PostgresRepository {
	return &PostgresRepository{db: tx}
}

const deviceColumns = `id, user_id, fingerprint_hash, token_hash, device_name, user_agent, ip_address, location, country_code, is_active, COALESCE(deactivated_for, ''), created_at, expires_at, last_used_at, deactivated_at`

func (r *PostgresRepository) Create(ctx context.Context, device TrustedDevice) (TrustedDevice, error) {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	query := `
		INSERT INTO trusted_device (id, user_id, fingerprint_hash, token_hash, device_name, user_agent, ip_address, location, country_code, is_active, expires_at, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, NOW(), NOW())
		RETURNING created_at, last_used_at
	`
	err := r.db.QueryRow(ctx, query,
		device.ID, device.UserID, device.FingerprintHash, device.TokenHash,
		device.DeviceName, device.UserAgent, device.IPAddress,
		device.Location, device.CountryCode, device.ExpiresAt,
	).Scan(&device.CreatedAt, &device.LastUsedAt)
	if err != nil {
		return TrustedDevice{}, fmt.Errorf("failed to create trusted device: %w", err)
	}
	device.IsActive = true
	return device, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_device WHERE id = $1`
	return scanDevice(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM trusted_device
		WHERE user_id = $1 AND is_active = true
		ORDER BY last_used_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	defer rows.Close()

	var result []TrustedDevice
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, device)
	}
	return result, rows.Err()
}

// Deactivate is conditional on is_active so concurrent deactivations of
// the same device resolve to exactly one winner.
func (r *PostgresRepository) Deactivate(ctx context.Context, id uuid.UUID, reason DeactivationReason) (bool, error) {
	query := `
		UPDATE trusted_device
		SET is_active = false, deactivated_for = $2, deactivated_at = NOW()
		WHERE id = $1 AND is_active = true
	`
	tag, err := r.db.Exec(ctx, query, id, string(reason))
	if err != nil {
		return false, fmt.Errorf("failed to deactivate trusted device: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) DeactivateExpired(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		UPDATE trusted_device
		SET is_active = false, deactivated_for = $2, deactivated_at = NOW()
		WHERE user_id = $1 AND is_active = true AND expires_at < NOW()
	`
	tag, err := r.db.Exec(ctx, query, userID, string(ReasonExpired))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// EnforceDeviceLimit keeps the maxActive most recently used devices active
// and deactivates the rest in one statement, so a concurrent enforcement
// cannot leave more than maxActive devices active.
func (r *PostgresRepository) EnforceDeviceLimit(ctx context.Context, userID uuid.UUID, maxActive int) (int, error) {
	query := `
		UPDATE trusted_device
		SET is_active = false, deactivated_for = $3, deactivated_at = NOW()
		WHERE user_id = $1 AND is_active = true AND id NOT IN (
			SELECT id FROM trusted_device
			WHERE user_id = $1 AND is_active = true
			ORDER BY last_used_at DESC
			LIMIT $2
		)
	`
	tag, err := r.db.Exec(ctx, query, userID, maxActive, string(ReasonDeviceLimitExceeded))
	if err != nil {
		return 0, fmt.Errorf("failed to enforce device limit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) DeactivateAll(ctx context.Context, userID uuid.UUID, reason DeactivationReason) (int, error) {
	query := `
		UPDATE trusted_device
		SET is_active = false, deactivated_for = $2, deactivated_at = NOW()
		WHERE user_id = $1 AND is_active = true
	`
	tag, err := r.db.Exec(ctx, query, userID, string(reason))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE trusted_device SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func scanDevice(row pgx.Row) (TrustedDevice, error) {
	var device TrustedDevice
	err := row.Scan(
		&device.ID, &device.UserID, &device.FingerprintHash, &device.TokenHash,
		&device.DeviceName, &device.UserAgent, &device.IPAddress,
		&device.Location, &device.CountryCode, &device.IsActive, &device.DeactivatedFor,
		&device.CreatedAt, &device.ExpiresAt, &device.LastUsedAt, &device.DeactivatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TrustedDevice{}, ErrDeviceNotFound
		}
		return TrustedDevice{}, fmt.Errorf("failed to scan trusted device: %w", err)
	}
	return device, nil
}

func scanDeviceRow(rows pgx.Rows) (TrustedDevice, error) {
	var device TrustedDevice
	err := rows.Scan(
		&device.ID, &device.UserID, &device.FingerprintHash, &device.TokenHash,
		&device.DeviceName, &device.UserAgent, &device.IPAddress,
		&device.Location, &device.CountryCode, &device.IsActive, &device.DeactivatedFor,
		&device.CreatedAt, &device.ExpiresAt, &device.LastUsedAt, &device.DeactivatedAt,
	)
	if err != nil {
		return TrustedDevice{}, fmt.Errorf("failed to scan trusted device: %w", err)
	}
	return device, nil
}
