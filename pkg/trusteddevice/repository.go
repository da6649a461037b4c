package trusteddevice

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDeviceNotFound is returned when no trusted device matches the lookup.
var ErrDeviceNotFound = errors.New("trusted device not found")

// Repository stores trusted devices. Deactivation methods are conditional
// on is_active so concurrent callers cannot double-apply a state change.
type Repository interface {
	// Create stores a new trusted device.
	Create(ctx context.Context, device TrustedDevice) (TrustedDevice, error)

	// GetByID loads a device by ID.
	GetByID(ctx context.Context, id uuid.UUID) (TrustedDevice, error)

	// ListActiveByUserID returns the user's active devices, most recently
	// used first.
	ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error)

	// Deactivate flips an active device to inactive with the given reason.
	// Returns false when the device was already inactive or unknown.
	Deactivate(ctx context.Context, id uuid.UUID, reason DeactivationReason) (bool, error)

	// DeactivateExpired deactivates the user's active devices whose trust
	// window has passed. Returns the number deactivated.
	DeactivateExpired(ctx context.Context, userID uuid.UUID) (int, error)

	// EnforceDeviceLimit deactivates least-recently-used active devices so
	// that at most maxActive remain, in a single conditional update.
	// Returns the number deactivated.
	EnforceDeviceLimit(ctx context.Context, userID uuid.UUID, maxActive int) (int, error)

	// DeactivateAll deactivates every active device for the user.
	// Returns the number deactivated.
	DeactivateAll(ctx context.Context, userID uuid.UUID, reason DeactivationReason) (int, error)

	// TouchLastUsed updates the device's last-used timestamp.
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}
