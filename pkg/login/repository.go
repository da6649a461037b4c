package login

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrCredentialNotFound is returned when no credential matches the lookup.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is a user's login record. TokenVersion is bumped whenever
// every outstanding access token for the user must be invalidated.
type Credential struct {
	UserID       uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	TokenVersion int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CredentialRepository stores login credentials.
type CredentialRepository interface {
	// Create stores a new credential.
	Create(ctx context.Context, cred Credential) (Credential, error)

	// GetByLogin finds a credential by username or email.
	GetByLogin(ctx context.Context, usernameOrEmail string) (Credential, error)

	// GetByUserID finds a credential by user ID.
	GetByUserID(ctx context.Context, userID uuid.UUID) (Credential, error)

	// UpdatePassword replaces the password hash and atomically increments
	// the token version.
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// GetTokenVersion returns the current token version for a user.
	GetTokenVersion(ctx context.Context, userID uuid.UUID) (int64, error)
}
