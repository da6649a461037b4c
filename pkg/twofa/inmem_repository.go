package twofa

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository is an in-memory Repository for tests and local
// development. Conditional updates happen under one mutex, matching the
// atomicity the SQL repository gets from single-statement updates.
type InMemRepository struct {
	mu          sync.Mutex
	profiles    map[uuid.UUID]*Profile
	backupCodes map[uuid.UUID][]*BackupCode
}

// NewInMemRepository creates an empty in-memory repository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		profiles:    make(map[uuid.UUID]*Profile),
		backupCodes: make(map[uuid.UUID][]*BackupCode),
	}
}

func (r *InMemRepository) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return Profile{}, ErrProfileNotFound
	}
	return *profile, nil
}

func (r *InMemRepository) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, exists := r.profiles[profile.UserID]; exists {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	stored := profile
	r.profiles[profile.UserID] = &stored
	return profile, nil
}

func (r *InMemRepository) SetTempCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return ErrProfileNotFound
	}
	profile.TempCode = code
	profile.TempCodeExpiresAt = &expiresAt
	profile.TempCodeAttempts = 0
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemRepository) IncrementTempCodeAttempts(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return 0, ErrProfileNotFound
	}
	profile.TempCodeAttempts++
	return profile.TempCodeAttempts, nil
}

func (r *InMemRepository) ClearTempCode(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return ErrProfileNotFound
	}
	profile.TempCode = ""
	profile.TempCodeExpiresAt = nil
	profile.TempCodeAttempts = 0
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemRepository) SetEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return ErrProfileNotFound
	}
	profile.Enabled = enabled
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemRepository) CreateBackupCodes(ctx context.Context, userID uuid.UUID, codeHashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hash := range codeHashes {
		r.backupCodes[userID] = append(r.backupCodes[userID], &BackupCode{
			ID:       uuid.New(),
			UserID:   userID,
			CodeHash: hash,
		})
	}
	return nil
}

func (r *InMemRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, code := range r.backupCodes[userID] {
		if code.CodeHash == codeHash && !code.IsUsed {
			now := time.Now().UTC()
			code.IsUsed = true
			code.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemRepository) CountUnusedBackupCodes(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, code := range r.backupCodes[userID] {
		if !code.IsUsed {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) DeleteUnusedBackupCodes(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*BackupCode
	deleted := 0
	for _, code := range r.backupCodes[userID] {
		if code.IsUsed {
			kept = append(kept, code)
		} else {
			deleted++
		}
	}
	r.backupCodes[userID] = kept
	return deleted, nil
}

func (r *InMemRepository) DeleteProfile(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.profiles, userID)
	delete(r.backupCodes, userID)
	return nil
}
