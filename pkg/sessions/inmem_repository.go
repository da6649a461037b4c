package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository is an in-memory session store for tests and local
// development.
type InMemRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byJTI    map[string]uuid.UUID
}

// NewInMemRepository creates an empty in-memory session repository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		sessions: make(map[uuid.UUID]*Session),
		byJTI:    make(map[string]uuid.UUID),
	}
}

func (r *InMemRepository) Create(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	session := &Session{
		ID:              uuid.New(),
		UserID:          req.UserID,
		JTI:             req.JTI,
		TrustedDeviceID: req.TrustedDeviceID,
		DeviceInfo:      req.DeviceInfo,
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
		ExpiresAt:       req.ExpiresAt,
		LastActivity:    now,
		CreatedAt:       now,
	}
	r.sessions[session.ID] = session
	r.byJTI[session.JTI] = session.ID

	copied := *session
	return &copied, nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *InMemRepository) GetByJTI(ctx context.Context, jti string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byJTI[jti]
	if !exists {
		return nil, ErrSessionNotFound
	}
	copied := *r.sessions[id]
	return &copied, nil
}

func (r *InMemRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	var result []Session
	for _, session := range r.sessions {
		if session.UserID == userID && session.RevokedAt == nil && session.ExpiresAt.After(now) {
			result = append(result, *session)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	return result, nil
}

func (r *InMemRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	if session.RevokedAt == nil {
		now := time.Now().UTC()
		session.RevokedAt = &now
	}
	return nil
}

func (r *InMemRepository) RevokeAllExcept(ctx context.Context, userID uuid.UUID, exceptID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for _, session := range r.sessions {
		if session.UserID != userID || session.ID == exceptID || session.RevokedAt != nil {
			continue
		}
		revokedAt := now
		session.RevokedAt = &revokedAt
		count++
	}
	return count, nil
}

func (r *InMemRepository) UpdateActivity(ctx context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byJTI[jti]
	if !exists {
		return ErrSessionNotFound
	}
	r.sessions[id].LastActivity = time.Now().UTC()
	return nil
}

func (r *InMemRepository) IsValid(ctx context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byJTI[jti]
	if !exists {
		return false, nil
	}
	session := r.sessions[id]
	return session.RevokedAt == nil && session.ExpiresAt.After(time.Now().UTC()), nil
}

func (r *InMemRepository) DeleteExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.byJTI, session.JTI)
			delete(r.sessions, id)
		}
	}
	return nil
}
