package login

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemCredentialRepository is an in-memory CredentialRepository for tests
// and local development.
type InMemCredentialRepository struct {
	mu          sync.RWMutex
	credentials map[uuid.UUID]Credential
}

// NewInMemCredentialRepository creates an empty in-memory repository.
func NewInMemCredentialRepository() *InMemCredentialRepository {
	return &InMemCredentialRepository{
		credentials: make(map[uuid.UUID]Credential),
	}
}

func (r *InMemCredentialRepository) Create(ctx context.Context, cred Credential) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cred.UserID == uuid.Nil {
		cred.UserID = uuid.New()
	}
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	r.credentials[cred.UserID] = cred
	return cred, nil
}

func (r *InMemCredentialRepository) GetByLogin(ctx context.Context, usernameOrEmail string) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(usernameOrEmail)
	for _, cred := range r.credentials {
		if strings.ToLower(cred.Username) == needle || strings.ToLower(cred.Email) == needle {
			return cred, nil
		}
	}
	return Credential{}, ErrCredentialNotFound
}

func (r *InMemCredentialRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, exists := r.credentials[userID]
	if !exists {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

func (r *InMemCredentialRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, exists := r.credentials[userID]
	if !exists {
		return ErrCredentialNotFound
	}
	cred.PasswordHash = passwordHash
	cred.TokenVersion++
	cred.UpdatedAt = time.Now().UTC()
	r.credentials[userID] = cred
	return nil
}

func (r *InMemCredentialRepository) GetTokenVersion(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, exists := r.credentials[userID]
	if !exists {
		return 0, ErrCredentialNotFound
	}
	return cred.TokenVersion, nil
}
