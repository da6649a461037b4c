package trusteddevice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository is an in-memory trusted-device store for tests and local
// development. All conditional state changes happen under one mutex, giving
// the same atomicity the SQL repository gets from single-statement updates.
type InMemRepository struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*TrustedDevice
}

// NewInMemRepository creates an empty in-memory repository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		devices: make(map[uuid.UUID]*TrustedDevice),
	}
}

func (r *InMemRepository) Create(ctx context.Context, device TrustedDevice) (TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.LastUsedAt.IsZero() {
		device.LastUsedAt = now
	}

	stored := device
	r.devices[device.ID] = &stored
	return device, nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id uuid.UUID) (TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[id]
	if !exists {
		return TrustedDevice{}, ErrDeviceNotFound
	}
	return *device, nil
}

func (r *InMemRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.listActiveLocked(userID), nil
}

func (r *InMemRepository) listActiveLocked(userID uuid.UUID) []TrustedDevice {
	var result []TrustedDevice
	for _, device := range r.devices {
		if device.UserID == userID && device.IsActive {
			result = append(result, *device)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUsedAt.After(result[j].LastUsedAt)
	})
	return result
}

func (r *InMemRepository) Deactivate(ctx context.Context, id uuid.UUID, reason DeactivationReason) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deactivateLocked(id, reason), nil
}

func (r *InMemRepository) deactivateLocked(id uuid.UUID, reason DeactivationReason) bool {
	device, exists := r.devices[id]
	if !exists || !device.IsActive {
		return false
	}
	now := time.Now().UTC()
	device.IsActive = false
	device.DeactivatedFor = string(reason)
	device.DeactivatedAt = &now
	return true
}

func (r *InMemRepository) DeactivateExpired(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for _, device := range r.devices {
		if device.UserID == userID && device.IsActive && now.After(device.ExpiresAt) {
			if r.deactivateLocked(device.ID, ReasonExpired) {
				count++
			}
		}
	}
	return count, nil
}

func (r *InMemRepository) EnforceDeviceLimit(ctx context.Context, userID uuid.UUID, maxActive int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.listActiveLocked(userID)
	if len(active) <= maxActive {
		return 0, nil
	}

	// listActiveLocked sorts most recently used first; everything past
	// maxActive is the LRU overflow.
	count := 0
	for _, device := range active[maxActive:] {
		if r.deactivateLocked(device.ID, ReasonDeviceLimitExceeded) {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) DeactivateAll(ctx context.Context, userID uuid.UUID, reason DeactivationReason) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, device := range r.devices {
		if device.UserID == userID && device.IsActive {
			if r.deactivateLocked(device.ID, reason) {
				count++
			}
		}
	}
	return count, nil
}

func (r *InMemRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[id]
	if !exists {
		return ErrDeviceNotFound
	}
	device.LastUsedAt = time.Now().UTC()
	return nil
}
