package trusteddevice

import (
	"time"

	"github.com/google/uuid"
)

// DeactivationReason records why a trusted device stopped being trusted.
type DeactivationReason string

const (
	ReasonExpired               DeactivationReason = "expired"
	ReasonFingerprintMismatch   DeactivationReason = "fingerprint_mismatch"
	ReasonGeographicRestriction DeactivationReason = "geographic_restriction"
	ReasonUserRevoked           DeactivationReason = "user_revoked"
	ReasonBulkRevoke            DeactivationReason = "bulk_revoke"
	ReasonDeviceLimitExceeded   DeactivationReason = "device_limit_exceeded"
)

// TrustedDevice is a device a user chose to remember after completing
// two-factor verification. TokenHash is the SHA-256 hex digest of the
// opaque trust token held by the client; the plaintext token is never
// stored or logged.
type TrustedDevice struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	FingerprintHash string     `json:"-"`
	TokenHash       string     `json:"-"`
	DeviceName      string     `json:"device_name"`
	UserAgent       string     `json:"user_agent"`
	IPAddress       string     `json:"ip_address"`
	Location        string     `json:"location"`
	CountryCode     string     `json:"country_code"`
	IsActive        bool       `json:"is_active"`
	DeactivatedFor  string     `json:"deactivated_for,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	LastUsedAt      time.Time  `json:"last_used_at"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty"`
}

// IsExpired reports whether the trust window has passed.
func (d *TrustedDevice) IsExpired() bool {
	return time.Now().UTC().After(d.ExpiresAt)
}
