package loginflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spendlyzer/auth/pkg/audit"
	"github.com/spendlyzer/auth/pkg/device"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/login"
	"github.com/spendlyzer/auth/pkg/ratelimit"
	"github.com/spendlyzer/auth/pkg/sessions"
	tg "github.com/spendlyzer/auth/pkg/tokengenerator"
	"github.com/spendlyzer/auth/pkg/trusteddevice"
	"github.com/spendlyzer/auth/pkg/twofa"
)

// ServiceDependencies holds all the services required by the login flow.
type ServiceDependencies struct {
	LoginService   *login.LoginService
	TwoFaService   *twofa.TwoFaService
	DeviceService  *trusteddevice.Service
	SessionService *sessions.Service
	JwtService     *tg.JwtService
}

// LoginFlowService orchestrates the complete login flow: credential
// verification, trusted-device recognition, second-factor challenges and
// session issuance.
type LoginFlowService struct {
	services  *ServiceDependencies
	attempts  ratelimit.AttemptLimiter
	auditSink audit.Sink
}

// SigninRequest contains the data needed to start a login.
type SigninRequest struct {
	Login              string
	Password           string
	IPAddress          string
	UserAgent          string
	Fingerprint        device.FingerprintData
	TrustedDeviceToken string
}

// VerifyTwoFARequest contains the data needed to finish a challenged login.
type VerifyTwoFARequest struct {
	PendingToken   string
	Code           string
	RememberDevice bool
	IPAddress      string
	UserAgent      string
	Fingerprint    device.FingerprintData
}

// Result contains the outcome of a login flow operation. On a challenged
// login Tokens holds only the pending temp token; on success it holds the
// access token plus, when a device was just trusted, the plaintext trust
// token for the cookie.
type Result struct {
	Success           bool
	TwoFactorRequired bool
	Method            twofa.Method
	Tokens            map[string]tg.TokenValue
	Error             *autherr.Error
}

// LoginFlowServiceOption configures a LoginFlowService.
type LoginFlowServiceOption func(*LoginFlowService)

// WithAttemptLimiter sets the limiter that bounds signin and verification
// attempts per login.
func WithAttemptLimiter(limiter ratelimit.AttemptLimiter) LoginFlowServiceOption {
	return func(s *LoginFlowService) {
		s.attempts = limiter
	}
}

// WithAuditSink sets the audit sink.
func WithAuditSink(sink audit.Sink) LoginFlowServiceOption {
	return func(s *LoginFlowService) {
		s.auditSink = sink
	}
}

// NewLoginFlowService creates a login flow service from its dependencies.
func NewLoginFlowService(deps *ServiceDependencies, opts ...LoginFlowServiceOption) *LoginFlowService {
	s := &LoginFlowService{
		services:  deps,
		attempts:  ratelimit.NewInMemAttemptLimiter(5, 15*time.Minute),
		auditSink: audit.NoOpSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signin verifies credentials and decides whether the login completes
// immediately, is satisfied by a trusted device, or needs a second factor.
func (s *LoginFlowService) Signin(ctx context.Context, req SigninRequest) Result {
	attemptKey := "signin:" + strings.ToLower(req.Login) + ":" + req.IPAddress
	if !s.recordAttempt(ctx, attemptKey) {
		s.emitLogin(ctx, "", req.IPAddress, false, "rate limited")
		return s.errorResult(autherr.RateLimitExceeded("900"))
	}

	cred, err := s.services.LoginService.Verify(ctx, req.Login, req.Password)
	if err != nil {
		slog.Warn("Credential verification failed", "ip", req.IPAddress)
		s.emitLogin(ctx, "", req.IPAddress, false, "invalid credentials")
		return s.errorResult(err)
	}
	s.clearAttempts(ctx, attemptKey)

	enabled, _, err := s.services.TwoFaService.Enabled(ctx, cred.UserID)
	if err != nil {
		return s.errorResult(err)
	}

	if !enabled {
		return s.completeLogin(ctx, cred, req.IPAddress, req.UserAgent, req.Fingerprint, nil, nil)
	}

	// A valid trust token satisfies the second factor. Any verification
	// failure degrades to a normal challenge rather than rejecting the
	// login outright.
	if req.TrustedDeviceToken != "" {
		dev, verifyErr := s.services.DeviceService.Verify(ctx, cred.UserID, req.TrustedDeviceToken, req.Fingerprint)
		if verifyErr == nil {
			return s.completeLogin(ctx, cred, req.IPAddress, req.UserAgent, req.Fingerprint, &dev.ID, nil)
		}
		slog.Info("Trusted device check failed, falling back to challenge", "user_id", cred.UserID)
	}

	method, err := s.services.TwoFaService.Challenge(ctx, cred.UserID)
	if err != nil {
		return s.errorResult(err)
	}

	tempToken, expiry, err := s.services.JwtService.GenerateToken(tg.TEMP_TOKEN_NAME, cred.UserID.String(), nil, map[string]interface{}{
		"user_id":           cred.UserID.String(),
		"two_factor_method": string(method),
	})
	if err != nil {
		slog.Error("Failed to generate temp token", "err", err)
		return s.errorResult(autherr.InternalWrap(err, "failed to generate temp token"))
	}

	return Result{
		TwoFactorRequired: true,
		Method:            method,
		Tokens: map[string]tg.TokenValue{
			tg.TEMP_TOKEN_NAME: {Token: tempToken, Expiry: expiry},
		},
	}
}

// VerifyTwoFA finishes a challenged login: it validates the pending token,
// checks the second-factor code, optionally trusts the device, and issues
// the session.
func (s *LoginFlowService) VerifyTwoFA(ctx context.Context, req VerifyTwoFARequest) Result {
	userID, err := s.parsePendingToken(req.PendingToken)
	if err != nil {
		return s.errorResult(err)
	}

	attemptKey := "2fa:" + userID.String()
	if !s.recordAttempt(ctx, attemptKey) {
		s.emitLogin(ctx, userID.String(), req.IPAddress, false, "rate limited")
		return s.errorResult(autherr.RateLimitExceeded("900"))
	}

	if err := s.services.TwoFaService.VerifyCode(ctx, userID, req.Code); err != nil {
		s.emitLogin(ctx, userID.String(), req.IPAddress, false, "invalid second factor")
		return s.errorResult(err)
	}
	s.clearAttempts(ctx, attemptKey)

	cred, err := s.services.LoginService.GetByUserID(ctx, userID)
	if err != nil {
		return s.errorResult(err)
	}

	var trustedDeviceID *uuid.UUID
	var trustToken *tg.TokenValue
	if req.RememberDevice {
		token, dev, trustErr := s.services.DeviceService.Trust(ctx, userID, req.Fingerprint)
		if trustErr != nil {
			slog.Warn("Failed to trust device", "user_id", userID, "err", trustErr)
		} else {
			trustedDeviceID = &dev.ID
			trustToken = &tg.TokenValue{Token: token, Expiry: dev.ExpiresAt}
		}
	}

	return s.completeLogin(ctx, cred, req.IPAddress, req.UserAgent, req.Fingerprint, trustedDeviceID, trustToken)
}

// ValidateAccess checks that an already parsed access token is still
// current: its token_version matches the credential and its session has
// not been revoked. Activity is touched as a side effect.
func (s *LoginFlowService) ValidateAccess(ctx context.Context, userID uuid.UUID, tokenVersion int64, jti string) error {
	current, err := s.services.LoginService.TokenVersion(ctx, userID)
	if err != nil {
		return err
	}
	if current != tokenVersion {
		return autherr.New(autherr.ErrCodeTokenExpired, "token is no longer valid")
	}

	valid, err := s.services.SessionService.IsSessionValid(ctx, jti)
	if err != nil {
		return autherr.InternalWrap(err, "failed to check session")
	}
	if !valid {
		return autherr.New(autherr.ErrCodeTokenExpired, "session has been revoked")
	}

	if err := s.services.SessionService.UpdateSessionActivity(ctx, jti); err != nil {
		slog.Warn("Failed to update session activity", "err", err)
	}
	return nil
}

// completeLogin issues the access token, records the session and emits the
// audit event.
func (s *LoginFlowService) completeLogin(ctx context.Context, cred *login.Credential, ip, userAgent string, fp device.FingerprintData, trustedDeviceID *uuid.UUID, trustToken *tg.TokenValue) Result {
	jti := uuid.New().String()
	rootModifications := map[string]interface{}{
		"username":      cred.Username,
		"email":         cred.Email,
		"token_version": cred.TokenVersion,
		"jti":           jti,
	}

	accessToken, expiry, err := s.services.JwtService.GenerateToken(tg.ACCESS_TOKEN_NAME, cred.UserID.String(), rootModifications, nil)
	if err != nil {
		slog.Error("Failed to generate access token", "err", err)
		return s.errorResult(autherr.InternalWrap(err, "failed to generate access token"))
	}

	_, err = s.services.SessionService.CreateSession(ctx, sessions.CreateSessionRequest{
		UserID:          cred.UserID,
		JTI:             jti,
		TrustedDeviceID: trustedDeviceID,
		DeviceInfo:      device.DisplayName(device.ParseUserAgent(userAgent)),
		IPAddress:       ip,
		UserAgent:       userAgent,
		ExpiresAt:       expiry,
	})
	if err != nil {
		slog.Error("Failed to create session", "err", err)
		return s.errorResult(autherr.InternalWrap(err, "failed to create session"))
	}

	s.emitLogin(ctx, cred.UserID.String(), ip, true, "")
	slog.Info("Login succeeded", "user_id", cred.UserID, "trusted_device", trustedDeviceID != nil)

	tokens := map[string]tg.TokenValue{
		tg.ACCESS_TOKEN_NAME: {Token: accessToken, Expiry: expiry},
	}
	if trustToken != nil {
		tokens[tg.TRUSTED_DEVICE_TOKEN_NAME] = *trustToken
	}
	return Result{Success: true, Tokens: tokens}
}

// parsePendingToken validates a pending-challenge token and extracts the
// challenged user.
func (s *LoginFlowService) parsePendingToken(tokenStr string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, autherr.New(autherr.ErrCodeTokenInvalid, "missing pending token")
	}

	token, err := s.services.JwtService.ParseToken(tg.TEMP_TOKEN_NAME, tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, autherr.New(autherr.ErrCodeTokenExpired, "pending token has expired")
		}
		return uuid.Nil, autherr.New(autherr.ErrCodeTokenInvalid, "invalid pending token")
	}

	extraClaims := tg.ExtraClaims(token)
	pending, _ := extraClaims["2fa_pending"].(bool)
	if !pending {
		return uuid.Nil, autherr.New(autherr.ErrCodeTokenInvalid, "token is not a pending challenge")
	}

	userIDStr, _ := extraClaims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, autherr.New(autherr.ErrCodeTokenInvalid, "invalid pending token")
	}
	return userID, nil
}

// recordAttempt reports whether the caller is still under the attempt
// limit. A limiter backend failure does not block logins.
func (s *LoginFlowService) recordAttempt(ctx context.Context, key string) bool {
	allowed, err := s.attempts.RecordAttempt(ctx, key)
	if err != nil {
		slog.Warn("Attempt limiter unavailable", "err", err)
		return true
	}
	return allowed
}

func (s *LoginFlowService) clearAttempts(ctx context.Context, key string) {
	if err := s.attempts.Clear(ctx, key); err != nil {
		slog.Warn("Failed to clear attempt counter", "err", err)
	}
}

func (s *LoginFlowService) emitLogin(ctx context.Context, userID, ip string, success bool, reason string) {
	eventType := audit.EventLoginSucceeded
	if !success {
		eventType = audit.EventLoginFailed
	}
	s.auditSink.Emit(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        ip,
		Success:   success,
		Error:     reason,
	})
}

// errorResult wraps an error into a failed Result, normalizing plain
// errors into the internal error shape.
func (s *LoginFlowService) errorResult(err error) Result {
	var typed *autherr.Error
	if !errors.As(err, &typed) {
		typed = autherr.InternalWrap(err, "login flow failed")
	}
	return Result{Success: false, Error: typed}
}
