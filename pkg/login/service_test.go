package login

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherr "github.com/spendlyzer/auth/pkg/errors"
)

func newTestService(t *testing.T) (*LoginService, *InMemCredentialRepository) {
	t.Helper()
	repo := NewInMemCredentialRepository()
	return NewLoginService(repo), repo
}

func TestRegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	cred, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Username)
	assert.True(t, cred.IsActive)
	assert.NotEqual(t, "correct horse", cred.PasswordHash)

	byUsername, err := svc.Verify(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, byUsername.UserID)

	// Login is accepted by email too, case-insensitively
	byEmail, err := svc.Verify(ctx, "Alice@Example.COM", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, byEmail.UserID)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "", "a@example.com", "correct horse")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidInput))

	_, err = svc.Register(ctx, "bob", "b@example.com", "short")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidInput))
}

func TestRegister_DuplicateLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@example.com", "correct horse")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeConflict))

	_, err = svc.Register(ctx, "alice2", "alice@example.com", "correct horse")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeConflict))
}

// Unknown login, wrong password and deactivated account must all be
// indistinguishable to the caller.
func TestVerify_GenericFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	cred, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "nobody", "correct horse")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidCredentials))

	_, err = svc.Verify(ctx, "alice", "wrong password")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidCredentials))

	stored, err := repo.GetByUserID(ctx, cred.UserID)
	require.NoError(t, err)
	stored.IsActive = false
	_, err = repo.Create(ctx, stored)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "alice", "correct horse")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidCredentials))
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	cred, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.EqualValues(t, 0, cred.TokenVersion)

	require.NoError(t, svc.ResetPassword(ctx, cred.UserID, "correct horse", "battery staple"))

	_, err = svc.Verify(ctx, "alice", "correct horse")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidCredentials))

	verified, err := svc.Verify(ctx, "alice", "battery staple")
	require.NoError(t, err)
	assert.EqualValues(t, 1, verified.TokenVersion)

	version, err := svc.TokenVersion(ctx, cred.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
}

func TestResetPassword_WrongCurrentPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	cred, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, cred.UserID, "wrong password", "battery staple")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidCredentials))

	err = svc.ResetPassword(ctx, cred.UserID, "correct horse", "short")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidInput))
}
