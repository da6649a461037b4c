package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when no session matches the lookup.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for session data access.
type Repository interface {
	// Create a new session.
	Create(ctx context.Context, req CreateSessionRequest) (*Session, error)

	// Get a session by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// Get a session by JTI.
	GetByJTI(ctx context.Context, jti string) (*Session, error)

	// List active sessions for a user.
	ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error)

	// Revoke a session by ID; revoking an already revoked session is a no-op.
	Revoke(ctx context.Context, id uuid.UUID) error

	// Revoke all sessions for a user except the given session ID
	// (uuid.Nil revokes everything). Returns the number revoked.
	RevokeAllExcept(ctx context.Context, userID uuid.UUID, exceptID uuid.UUID) (int, error)

	// Update last activity timestamp for a session.
	UpdateActivity(ctx context.Context, jti string) error

	// IsValid reports whether the session exists, is not revoked, and is
	// not expired.
	IsValid(ctx context.Context, jti string) (bool, error)

	// DeleteExpired removes expired sessions (maintenance).
	DeleteExpired(ctx context.Context) error
}
