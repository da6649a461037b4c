package trusteddevice

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spendlyzer/auth/pkg/audit"
	"github.com/spendlyzer/auth/pkg/device"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/geo"
)

const (
	// DefaultTrustTTL is how long a device stays trusted without renewal.
	DefaultTrustTTL = 7 * 24 * time.Hour
	// DefaultMaxDevices caps the active trusted devices per user.
	DefaultMaxDevices = 5

	tokenBytes = 32
)

// Service manages the trusted-device lifecycle.
type Service struct {
	repo       Repository
	locator    geo.Locator
	auditSink  audit.Sink
	trustTTL   time.Duration
	maxDevices int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTrustTTL overrides the trust window.
func WithTrustTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.trustTTL = ttl
	}
}

// WithMaxDevices overrides the per-user active device cap.
func WithMaxDevices(maxDevices int) ServiceOption {
	return func(s *Service) {
		s.maxDevices = maxDevices
	}
}

// WithAuditSink overrides the audit sink.
func WithAuditSink(sink audit.Sink) ServiceOption {
	return func(s *Service) {
		s.auditSink = sink
	}
}

// NewService creates a trusted-device service.
func NewService(repo Repository, locator geo.Locator, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		locator:    locator,
		auditSink:  audit.NoOpSink{},
		trustTTL:   DefaultTrustTTL,
		maxDevices: DefaultMaxDevices,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrustTTL returns the configured trust window.
func (s *Service) TrustTTL() time.Duration {
	return s.trustTTL
}

// Trust registers the requesting device as trusted and returns the opaque
// trust token for the client to hold. Only the token's SHA-256 digest is
// persisted. When the new device pushes the user over the cap, the least
// recently used devices are deactivated.
func (s *Service) Trust(ctx context.Context, userID uuid.UUID, fp device.FingerprintData) (string, *TrustedDevice, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, autherr.InternalWrap(err, "failed to generate trust token")
	}

	if _, err := s.repo.DeactivateExpired(ctx, userID); err != nil {
		return "", nil, autherr.InternalWrap(err, "failed to expire stale devices")
	}

	location := s.locator.Locate(ctx, fp.IPAddress)
	traits := device.ParseUserAgent(fp.UserAgent)

	created, err := s.repo.Create(ctx, TrustedDevice{
		UserID:          userID,
		FingerprintHash: device.Fingerprint(fp),
		TokenHash:       hashToken(token),
		DeviceName:      device.DisplayName(traits),
		UserAgent:       fp.UserAgent,
		IPAddress:       fp.IPAddress,
		Location:        location.String(),
		CountryCode:     location.CountryCode,
		IsActive:        true,
		ExpiresAt:       time.Now().UTC().Add(s.trustTTL),
	})
	if err != nil {
		return "", nil, autherr.InternalWrap(err, "failed to store trusted device")
	}

	evicted, err := s.repo.EnforceDeviceLimit(ctx, userID, s.maxDevices)
	if err != nil {
		return "", nil, autherr.InternalWrap(err, "failed to enforce device limit")
	}
	if evicted > 0 {
		slog.Info("Evicted least recently used trusted devices",
			"user_id", userID, "evicted", evicted, "max_devices", s.maxDevices)
		s.emit(ctx, audit.EventTrustedDeviceDeactivated, userID, fp.IPAddress, true, map[string]string{
			"reason":  string(ReasonDeviceLimitExceeded),
			"evicted": fmt.Sprintf("%d", evicted),
		})
	}

	slog.Info("Trusted device registered",
		"user_id", userID, "device_id", created.ID, "device_name", created.DeviceName)
	s.emit(ctx, audit.EventTrustedDeviceCreated, userID, fp.IPAddress, true, map[string]string{
		"device_id":   created.ID.String(),
		"device_name": created.DeviceName,
	})

	return token, &created, nil
}

// Verify checks a presented trust token against the user's active devices.
// Any failed check deactivates the matched device and returns
// DeviceNotTrusted; the caller falls back to a second-factor challenge.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, token string, fp device.FingerprintData) (*TrustedDevice, error) {
	if token == "" {
		return nil, autherr.DeviceNotTrusted()
	}

	devices, err := s.repo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, autherr.InternalWrap(err, "failed to list trusted devices")
	}

	matched := matchByTokenHash(devices, hashToken(token))
	if matched == nil {
		return nil, autherr.DeviceNotTrusted()
	}

	if matched.IsExpired() {
		return nil, s.reject(ctx, matched, ReasonExpired, fp.IPAddress)
	}

	if fingerprintMismatch(matched.FingerprintHash, device.Fingerprint(fp)) {
		return nil, s.reject(ctx, matched, ReasonFingerprintMismatch, fp.IPAddress)
	}

	current := s.locator.Locate(ctx, fp.IPAddress)
	if countryMismatch(matched.CountryCode, current.CountryCode) {
		return nil, s.reject(ctx, matched, ReasonGeographicRestriction, fp.IPAddress)
	}

	if err := s.repo.TouchLastUsed(ctx, matched.ID); err != nil {
		slog.Warn("Failed to update trusted device last_used_at", "device_id", matched.ID, "err", err)
	}

	s.emit(ctx, audit.EventTrustedDeviceUsed, userID, fp.IPAddress, true, map[string]string{
		"device_id": matched.ID.String(),
	})
	return matched, nil
}

// List returns the user's active trusted devices.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error) {
	return s.repo.ListActiveByUserID(ctx, userID)
}

// Revoke deactivates one of the user's devices. Revoking a device that is
// already inactive is a no-op.
func (s *Service) Revoke(ctx context.Context, userID, deviceID uuid.UUID) error {
	found, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return autherr.New(autherr.ErrCodeNotFound, "trusted device not found")
	}
	if found.UserID != userID {
		return autherr.New(autherr.ErrCodeNotFound, "trusted device not found")
	}

	deactivated, err := s.repo.Deactivate(ctx, deviceID, ReasonUserRevoked)
	if err != nil {
		return autherr.InternalWrap(err, "failed to revoke trusted device")
	}
	if deactivated {
		s.emit(ctx, audit.EventTrustedDeviceDeactivated, userID, "", true, map[string]string{
			"device_id": deviceID.String(),
			"reason":    string(ReasonUserRevoked),
		})
	}
	return nil
}

// RevokeAll deactivates every active device for the user and returns the
// count.
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.DeactivateAll(ctx, userID, ReasonBulkRevoke)
	if err != nil {
		return 0, autherr.InternalWrap(err, "failed to revoke trusted devices")
	}
	if count > 0 {
		s.emit(ctx, audit.EventTrustedDeviceDeactivated, userID, "", true, map[string]string{
			"reason":  string(ReasonBulkRevoke),
			"revoked": fmt.Sprintf("%d", count),
		})
	}
	return count, nil
}

func (s *Service) reject(ctx context.Context, matched *TrustedDevice, reason DeactivationReason, ip string) error {
	if _, err := s.repo.Deactivate(ctx, matched.ID, reason); err != nil {
		slog.Warn("Failed to deactivate trusted device", "device_id", matched.ID, "err", err)
	}
	slog.Info("Trusted device check failed",
		"user_id", matched.UserID, "device_id", matched.ID, "reason", string(reason))
	s.emit(ctx, audit.EventTrustedDeviceDeactivated, matched.UserID, ip, false, map[string]string{
		"device_id": matched.ID.String(),
		"reason":    string(reason),
	})
	return autherr.DeviceNotTrusted()
}

func (s *Service) emit(ctx context.Context, eventType string, userID uuid.UUID, ip string, success bool, metadata map[string]string) {
	s.auditSink.Emit(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID.String(),
		IP:        ip,
		Success:   success,
		Metadata:  metadata,
	})
}

// matchByTokenHash scans every device with a constant-time comparison per
// candidate, so timing does not reveal which stored digest came closest.
func matchByTokenHash(devices []TrustedDevice, tokenHash string) *TrustedDevice {
	var matched *TrustedDevice
	for i := range devices {
		if subtle.ConstantTimeCompare([]byte(devices[i].TokenHash), []byte(tokenHash)) == 1 {
			matched = &devices[i]
		}
	}
	return matched
}

func fingerprintMismatch(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1
}

// countryMismatch fails only when both sides resolved to a real country
// and they differ. The unknown sentinel passes: geolocation is advisory
// and failing closed on a resolver outage would lock out every user.
func countryMismatch(stored, current string) bool {
	if stored == "" || stored == geo.UnknownCountryCode {
		return false
	}
	if current == "" || current == geo.UnknownCountryCode {
		return false
	}
	return stored != current
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
