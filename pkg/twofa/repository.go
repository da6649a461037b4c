package twofa

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrProfileNotFound is returned when a user has no second-factor profile.
var ErrProfileNotFound = errors.New("two-factor profile not found")

// Repository stores second-factor profiles and backup codes. Backup-code
// consumption and attempt counting are conditional updates so concurrent
// verifications cannot double-spend a code.
type Repository interface {
	// GetProfile loads the user's profile.
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)

	// UpsertProfile creates or replaces the user's profile.
	UpsertProfile(ctx context.Context, profile Profile) (Profile, error)

	// SetTempCode stores a delivered code with its expiry and resets the
	// attempt counter.
	SetTempCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error

	// IncrementTempCodeAttempts bumps the attempt counter and returns the
	// new count.
	IncrementTempCodeAttempts(ctx context.Context, userID uuid.UUID) (int, error)

	// ClearTempCode removes any stored code and resets the counter.
	ClearTempCode(ctx context.Context, userID uuid.UUID) error

	// SetEnabled flips the enabled flag.
	SetEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error

	// CreateBackupCodes stores a fresh set of code digests.
	CreateBackupCodes(ctx context.Context, userID uuid.UUID, codeHashes []string) error

	// ConsumeBackupCode marks the matching unused code as used. Returns
	// true only for the single caller that flipped it.
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error)

	// CountUnusedBackupCodes returns how many codes remain.
	CountUnusedBackupCodes(ctx context.Context, userID uuid.UUID) (int, error)

	// DeleteUnusedBackupCodes removes the user's unused codes. Returns the
	// number deleted.
	DeleteUnusedBackupCodes(ctx context.Context, userID uuid.UUID) (int, error)

	// DeleteProfile removes the profile entirely.
	DeleteProfile(ctx context.Context, userID uuid.UUID) error
}
