package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service provides session management business logic.
type Service struct {
	repo Repository
}

// NewService creates a new session service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateSession records a new session for an issued access token.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("user_id is required")
	}
	if req.JTI == "" {
		return nil, fmt.Errorf("jti is required")
	}
	if req.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	return s.repo.Create(ctx, req)
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

// GetSessionByJTI retrieves a session by JTI.
func (s *Service) GetSessionByJTI(ctx context.Context, jti string) (*Session, error) {
	return s.repo.GetByJTI(ctx, jti)
}

// ListActiveSessionSummaries returns the active sessions for a user, with
// the caller's session marked by comparing JTIs.
func (s *Service) ListActiveSessionSummaries(ctx context.Context, userID uuid.UUID, currentJTI string) (*SessionListResponse, error) {
	list, err := s.repo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, len(list))
	for i, session := range list {
		summaries[i] = SessionSummary{
			ID:               session.ID,
			DeviceInfo:       session.DeviceInfo,
			IPAddress:        session.IPAddress,
			LastActivity:     session.LastActivity,
			CreatedAt:        session.CreatedAt,
			ExpiresAt:        session.ExpiresAt,
			IsCurrentSession: session.JTI == currentJTI,
			RevokedAt:        session.RevokedAt,
		}
	}

	return &SessionListResponse{
		Sessions:    summaries,
		Total:       len(summaries),
		ActiveCount: len(summaries),
		CurrentJTI:  currentJTI,
	}, nil
}

// RevokeSession revokes a specific session owned by the user.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	return s.repo.Revoke(ctx, sessionID)
}

// RevokeAllSessions revokes every session for the user except, optionally,
// the current one. Returns the number revoked.
func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID, exceptJTI string) (int, error) {
	exceptID := uuid.Nil
	if exceptJTI != "" {
		current, err := s.repo.GetByJTI(ctx, exceptJTI)
		if err == nil {
			exceptID = current.ID
		}
	}
	return s.repo.RevokeAllExcept(ctx, userID, exceptID)
}

// UpdateSessionActivity touches the last-activity timestamp.
func (s *Service) UpdateSessionActivity(ctx context.Context, jti string) error {
	return s.repo.UpdateActivity(ctx, jti)
}

// IsSessionValid reports whether the session is live: known, not revoked,
// not expired.
func (s *Service) IsSessionValid(ctx context.Context, jti string) (bool, error) {
	return s.repo.IsValid(ctx, jti)
}

// CleanupExpiredSessions removes expired sessions (maintenance task).
func (s *Service) CleanupExpiredSessions(ctx context.Context) error {
	return s.repo.DeleteExpired(ctx)
}
