package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	autherr "github.com/spendlyzer/auth/pkg/errors"
)

// dummyHash is compared against when the login does not exist, so unknown
// and known logins take a comparable amount of time to reject.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LoginService verifies credentials and manages passwords.
type LoginService struct {
	repo   CredentialRepository
	hasher PasswordHasher
}

// LoginServiceOption configures a LoginService.
type LoginServiceOption func(*LoginService)

// WithPasswordHasher overrides the password hasher.
func WithPasswordHasher(hasher PasswordHasher) LoginServiceOption {
	return func(s *LoginService) {
		s.hasher = hasher
	}
}

// NewLoginService creates a LoginService backed by the given repository.
func NewLoginService(repo CredentialRepository, opts ...LoginServiceOption) *LoginService {
	s := &LoginService{
		repo:   repo,
		hasher: &BcryptHasher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify checks a username-or-email plus password pair. Every failure mode
// returns the same generic invalid-credentials error.
func (s *LoginService) Verify(ctx context.Context, usernameOrEmail, password string) (*Credential, error) {
	cred, err := s.repo.GetByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			// Burn a hash comparison anyway to keep timing consistent.
			_, _ = s.hasher.Verify(password, dummyHash)
			return nil, autherr.InvalidCredentials()
		}
		return nil, autherr.InternalWrap(err, "failed to look up credential")
	}

	match, err := s.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		return nil, autherr.InternalWrap(err, "failed to verify password")
	}
	if !match || !cred.IsActive {
		return nil, autherr.InvalidCredentials()
	}

	return &cred, nil
}

// Register creates a credential for a new user.
func (s *LoginService) Register(ctx context.Context, username, email, password string) (*Credential, error) {
	if username == "" || email == "" {
		return nil, autherr.New(autherr.ErrCodeInvalidInput, "username and email are required")
	}
	if len(password) < 8 {
		return nil, autherr.New(autherr.ErrCodeInvalidInput, "password must be at least 8 characters")
	}

	if _, err := s.repo.GetByLogin(ctx, username); err == nil {
		return nil, autherr.New(autherr.ErrCodeConflict, "username already taken")
	}
	if _, err := s.repo.GetByLogin(ctx, email); err == nil {
		return nil, autherr.New(autherr.ErrCodeConflict, "email already registered")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, autherr.InternalWrap(err, "failed to hash password")
	}

	cred, err := s.repo.Create(ctx, Credential{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		return nil, autherr.InternalWrap(err, "failed to create credential")
	}

	slog.Info("Registered new credential", "user_id", cred.UserID, "username", cred.Username)
	return &cred, nil
}

// ResetPassword replaces the user's password and bumps the token version,
// invalidating every access token issued before the reset.
func (s *LoginService) ResetPassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	cred, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return autherr.InvalidCredentials()
		}
		return autherr.InternalWrap(err, "failed to look up credential")
	}

	match, err := s.hasher.Verify(currentPassword, cred.PasswordHash)
	if err != nil {
		return autherr.InternalWrap(err, "failed to verify password")
	}
	if !match {
		return autherr.InvalidCredentials()
	}

	if len(newPassword) < 8 {
		return autherr.New(autherr.ErrCodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return autherr.InternalWrap(err, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("Password reset, token version bumped", "user_id", userID)
	return nil
}

// TokenVersion returns the user's current token version.
func (s *LoginService) TokenVersion(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetTokenVersion(ctx, userID)
}

// GetByUserID loads a credential by user ID.
func (s *LoginService) GetByUserID(ctx context.Context, userID uuid.UUID) (*Credential, error) {
	cred, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
