package twofa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spendlyzer/auth/pkg/audit"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/notification"
)

const (
	// DefaultTempCodeTTL is how long a delivered sms/email code stays valid.
	DefaultTempCodeTTL = 10 * time.Minute
	// DefaultMaxTempAttempts is how many wrong guesses a delivered code
	// survives before it is cleared and a new one must be requested.
	DefaultMaxTempAttempts = 3
)

// TwoFaService manages second-factor setup, challenges and verification.
type TwoFaService struct {
	repo            Repository
	notifier        *notification.NotificationManager
	auditSink       audit.Sink
	issuer          string
	tempCodeTTL     time.Duration
	maxTempAttempts int
}

// TwoFaServiceOption configures a TwoFaService.
type TwoFaServiceOption func(*TwoFaService)

// WithIssuer sets the issuer shown in authenticator apps.
func WithIssuer(issuer string) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.issuer = issuer
	}
}

// WithTempCodeTTL overrides the delivered-code lifetime.
func WithTempCodeTTL(ttl time.Duration) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.tempCodeTTL = ttl
	}
}

// WithMaxTempAttempts overrides the per-code guess limit.
func WithMaxTempAttempts(max int) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.maxTempAttempts = max
	}
}

// WithTwoFaAuditSink sets the audit sink.
func WithTwoFaAuditSink(sink audit.Sink) TwoFaServiceOption {
	return func(s *TwoFaService) {
		s.auditSink = sink
	}
}

// NewTwoFaService creates a TwoFaService backed by the given repository
// and notification manager.
func NewTwoFaService(repo Repository, notifier *notification.NotificationManager, opts ...TwoFaServiceOption) *TwoFaService {
	s := &TwoFaService{
		repo:            repo,
		notifier:        notifier,
		auditSink:       audit.NoOpSink{},
		issuer:          "Spendlyzer",
		tempCodeTTL:     DefaultTempCodeTTL,
		maxTempAttempts: DefaultMaxTempAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup starts enrollment for a method. For authenticator it returns the
// secret and provisioning URI to show once; for sms and email it delivers
// a setup code to the contact.
func (s *TwoFaService) Setup(ctx context.Context, userID uuid.UUID, method Method, contact string) (SetupResult, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return SetupResult{}, autherr.InternalWrap(err, "failed to load two-factor profile")
	}
	if err == nil && profile.Enabled {
		return SetupResult{}, autherr.New(autherr.ErrCodeTwoFactorAlreadyEnabled, "two-factor authentication is already enabled")
	}

	switch method {
	case MethodAuthenticator:
		secret, uri, err := generateTOTPSecret(s.issuer, userID.String())
		if err != nil {
			return SetupResult{}, autherr.InternalWrap(err, "failed to generate authenticator secret")
		}
		if _, err := s.repo.UpsertProfile(ctx, Profile{
			UserID:     userID,
			Method:     MethodAuthenticator,
			TOTPSecret: secret,
		}); err != nil {
			return SetupResult{}, autherr.InternalWrap(err, "failed to save two-factor profile")
		}
		slog.Info("two-factor setup started", "user_id", userID, "method", method)
		return SetupResult{Method: MethodAuthenticator, Secret: secret, ProvisioningURI: uri}, nil

	case MethodSMS, MethodEmail:
		if contact == "" {
			return SetupResult{}, autherr.New(autherr.ErrCodeInvalidInput, "contact is required for this method")
		}
		if err == nil && profile.TempCodeOutstanding() {
			return SetupResult{}, autherr.New(autherr.ErrCodeSetupCodePending, "a setup code was already sent, verify it or wait for it to expire")
		}
		if _, err := s.repo.UpsertProfile(ctx, Profile{
			UserID:  userID,
			Method:  method,
			Contact: contact,
		}); err != nil {
			return SetupResult{}, autherr.InternalWrap(err, "failed to save two-factor profile")
		}
		if err := s.deliverCode(ctx, userID, method, contact, notification.TwoFactorSetupCode); err != nil {
			return SetupResult{}, err
		}
		slog.Info("two-factor setup started", "user_id", userID, "method", method)
		return SetupResult{Method: method, CodeSent: true}, nil
	}

	return SetupResult{}, autherr.Newf(autherr.ErrCodeInvalidInput, "invalid two-factor method: %q", method)
}

// ResendSetupCode delivers a fresh setup code for a pending sms or email
// enrollment, replacing any outstanding code.
func (s *TwoFaService) ResendSetupCode(ctx context.Context, userID uuid.UUID) error {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile.Enabled {
		return autherr.New(autherr.ErrCodeTwoFactorAlreadyEnabled, "two-factor authentication is already enabled")
	}
	if profile.Method == MethodAuthenticator {
		return autherr.New(autherr.ErrCodeInvalidInput, "authenticator setup does not use delivered codes")
	}
	return s.deliverCode(ctx, userID, profile.Method, profile.Contact, notification.TwoFactorSetupCode)
}

// ConfirmSetup finishes enrollment by verifying the user can produce a
// valid code, then enables the method and issues backup codes. The
// returned plaintext codes are shown exactly once.
func (s *TwoFaService) ConfirmSetup(ctx context.Context, userID uuid.UUID, code string) (EnableResult, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return EnableResult{}, err
	}
	if profile.Enabled {
		return EnableResult{}, autherr.New(autherr.ErrCodeTwoFactorAlreadyEnabled, "two-factor authentication is already enabled")
	}

	if err := s.verifyMethodCode(ctx, profile, code); err != nil {
		return EnableResult{}, err
	}

	if err := s.repo.SetEnabled(ctx, userID, true); err != nil {
		return EnableResult{}, autherr.InternalWrap(err, "failed to enable two-factor authentication")
	}

	codes, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return EnableResult{}, err
	}

	s.auditSink.Emit(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTwoFactorEnabled,
		UserID:    userID.String(),
		Success:   true,
		Metadata:  map[string]string{"method": string(profile.Method)},
	})
	slog.Info("two-factor enabled", "user_id", userID, "method", profile.Method)

	return EnableResult{Method: profile.Method, BackupCodes: codes}, nil
}

// Challenge delivers a login code for sms and email methods. For the
// authenticator method there is nothing to deliver.
func (s *TwoFaService) Challenge(ctx context.Context, userID uuid.UUID) (Method, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if !profile.Enabled {
		return "", autherr.New(autherr.ErrCodeTwoFactorNotEnabled, "two-factor authentication is not enabled")
	}
	if profile.Method == MethodAuthenticator {
		return profile.Method, nil
	}
	if err := s.deliverCode(ctx, userID, profile.Method, profile.Contact, notification.TwoFactorCode); err != nil {
		return "", err
	}
	return profile.Method, nil
}

// VerifyCode checks a second-factor code for an enabled profile. Codes
// containing a dash are treated as backup codes regardless of method.
func (s *TwoFaService) VerifyCode(ctx context.Context, userID uuid.UUID, code string) error {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !profile.Enabled {
		return autherr.New(autherr.ErrCodeTwoFactorNotEnabled, "two-factor authentication is not enabled")
	}

	if isBackupCodeFormat(code) {
		return s.consumeBackupCode(ctx, userID, code)
	}
	return s.verifyMethodCode(ctx, profile, code)
}

// Disable turns off two-factor authentication after a fresh code proves
// the caller still controls the factor. Unused backup codes are deleted.
func (s *TwoFaService) Disable(ctx context.Context, userID uuid.UUID, code string) error {
	if err := s.VerifyCode(ctx, userID, code); err != nil {
		return err
	}
	if err := s.repo.SetEnabled(ctx, userID, false); err != nil {
		return autherr.InternalWrap(err, "failed to disable two-factor authentication")
	}
	if _, err := s.repo.DeleteUnusedBackupCodes(ctx, userID); err != nil {
		return autherr.InternalWrap(err, "failed to delete backup codes")
	}
	if err := s.repo.ClearTempCode(ctx, userID); err != nil && !errors.Is(err, ErrProfileNotFound) {
		return autherr.InternalWrap(err, "failed to clear verification code")
	}

	s.auditSink.Emit(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTwoFactorDisabled,
		UserID:    userID.String(),
		Success:   true,
	})
	slog.Info("two-factor disabled", "user_id", userID)
	return nil
}

// RegenerateBackupCodes replaces all unused backup codes after a fresh
// code check. The returned plaintext codes are shown exactly once.
func (s *TwoFaService) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	if err := s.VerifyCode(ctx, userID, code); err != nil {
		return nil, err
	}
	codes, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.auditSink.Emit(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventBackupCodesRegenerated,
		UserID:    userID.String(),
		Success:   true,
	})
	slog.Info("backup codes regenerated", "user_id", userID)
	return codes, nil
}

// Status returns the user's current second-factor state. Users with no
// profile get a disabled status rather than an error.
func (s *TwoFaService) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return Status{Enabled: false}, nil
	}
	if err != nil {
		return Status{}, autherr.InternalWrap(err, "failed to load two-factor profile")
	}
	if !profile.Enabled {
		return Status{Enabled: false}, nil
	}

	remaining, err := s.repo.CountUnusedBackupCodes(ctx, userID)
	if err != nil {
		return Status{}, autherr.InternalWrap(err, "failed to count backup codes")
	}
	return Status{Enabled: true, Method: profile.Method, BackupCodesRemaining: remaining}, nil
}

// Enabled reports whether the user has an active second factor.
func (s *TwoFaService) Enabled(ctx context.Context, userID uuid.UUID) (bool, Method, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", autherr.InternalWrap(err, "failed to load two-factor profile")
	}
	return profile.Enabled, profile.Method, nil
}

func (s *TwoFaService) loadProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return Profile{}, autherr.New(autherr.ErrCodeTwoFactorNotEnabled, "two-factor authentication is not set up")
	}
	if err != nil {
		return Profile{}, autherr.InternalWrap(err, "failed to load two-factor profile")
	}
	return profile, nil
}

func (s *TwoFaService) deliverCode(ctx context.Context, userID uuid.UUID, method Method, contact string, noticeType notification.NoticeType) error {
	code, err := generateTempCode()
	if err != nil {
		return autherr.InternalWrap(err, "failed to generate verification code")
	}
	expiresAt := time.Now().UTC().Add(s.tempCodeTTL)
	if err := s.repo.SetTempCode(ctx, userID, code, expiresAt); err != nil {
		return autherr.InternalWrap(err, "failed to store verification code")
	}

	system := notification.SMSSystem
	if method == MethodEmail {
		system = notification.EmailSystem
	}
	err = s.notifier.Send(noticeType, system, notification.NotificationData{
		To:   contact,
		Data: map[string]string{"Code": code},
	})
	if err != nil {
		// The stored code stays valid. Login challenges survive a
		// delivery outage; setup cannot proceed without the code.
		if noticeType == notification.TwoFactorCode {
			slog.Warn("failed to send verification code", "user_id", userID, "method", method, "err", err)
			return nil
		}
		return autherr.InternalWrap(err, fmt.Sprintf("failed to send verification code via %s", method))
	}
	slog.Info("verification code sent", "user_id", userID, "method", method)
	return nil
}

// verifyMethodCode checks a code against the profile's configured method.
func (s *TwoFaService) verifyMethodCode(ctx context.Context, profile Profile, code string) error {
	switch profile.Method {
	case MethodAuthenticator:
		if !validateTOTPCode(code, profile.TOTPSecret) {
			return autherr.InvalidVerificationCode()
		}
		return nil
	case MethodSMS, MethodEmail:
		return s.verifyTempCode(ctx, profile, code)
	}
	return autherr.Newf(autherr.ErrCodeInvalidInput, "invalid two-factor method: %q", profile.Method)
}

// verifyTempCode checks a delivered code. Each wrong guess counts against
// the code; once the limit is reached the code is cleared and the user
// must request a new one.
func (s *TwoFaService) verifyTempCode(ctx context.Context, profile Profile, code string) error {
	if profile.TempCode == "" {
		return autherr.InvalidVerificationCode()
	}
	if profile.TempCodeExpiresAt == nil || !time.Now().UTC().Before(*profile.TempCodeExpiresAt) {
		if err := s.repo.ClearTempCode(ctx, profile.UserID); err != nil {
			return autherr.InternalWrap(err, "failed to clear verification code")
		}
		return autherr.CodeExpired()
	}

	if subtle.ConstantTimeCompare([]byte(profile.TempCode), []byte(code)) != 1 {
		attempts, err := s.repo.IncrementTempCodeAttempts(ctx, profile.UserID)
		if err != nil {
			return autherr.InternalWrap(err, "failed to record failed attempt")
		}
		if attempts >= s.maxTempAttempts {
			if err := s.repo.ClearTempCode(ctx, profile.UserID); err != nil {
				return autherr.InternalWrap(err, "failed to clear verification code")
			}
			slog.Warn("verification code invalidated after repeated failures", "user_id", profile.UserID)
		}
		return autherr.InvalidVerificationCode()
	}

	if err := s.repo.ClearTempCode(ctx, profile.UserID); err != nil {
		return autherr.InternalWrap(err, "failed to clear verification code")
	}
	return nil
}

func (s *TwoFaService) consumeBackupCode(ctx context.Context, userID uuid.UUID, code string) error {
	consumed, err := s.repo.ConsumeBackupCode(ctx, userID, hashBackupCode(code))
	if err != nil {
		return autherr.InternalWrap(err, "failed to check backup code")
	}
	if !consumed {
		return autherr.InvalidVerificationCode()
	}
	slog.Info("backup code consumed", "user_id", userID)
	return nil
}

func (s *TwoFaService) issueBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	codes, err := generateBackupCodes()
	if err != nil {
		return nil, autherr.InternalWrap(err, "failed to generate backup codes")
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashBackupCode(code)
	}
	if _, err := s.repo.DeleteUnusedBackupCodes(ctx, userID); err != nil {
		return nil, autherr.InternalWrap(err, "failed to delete old backup codes")
	}
	if err := s.repo.CreateBackupCodes(ctx, userID, hashes); err != nil {
		return nil, autherr.InternalWrap(err, "failed to store backup codes")
	}
	return codes, nil
}

// isBackupCodeFormat distinguishes backup codes from delivered and TOTP
// codes, which are purely numeric.
func isBackupCodeFormat(code string) bool {
	return strings.Contains(code, "-")
}
