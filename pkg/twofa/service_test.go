package twofa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlzd/gotp"

	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/notification"
)

func newTestService(t *testing.T, opts ...TwoFaServiceOption) (*TwoFaService, *InMemRepository, *notification.MockNotifier) {
	t.Helper()
	repo := NewInMemRepository()
	mock := &notification.MockNotifier{}
	nm, err := notification.NewNotificationManagerWithOptions(notification.WithDefaultTemplates())
	require.NoError(t, err)
	nm.RegisterNotifier(notification.SMSSystem, mock)
	nm.RegisterNotifier(notification.EmailSystem, mock)
	return NewTwoFaService(repo, nm, opts...), repo, mock
}

func lastSentCode(t *testing.T, mock *notification.MockNotifier) string {
	t.Helper()
	require.NotEmpty(t, mock.SentNotifications)
	code := mock.SentNotifications[len(mock.SentNotifications)-1].Data["Code"]
	require.Len(t, code, 6)
	return code
}

func enableAuthenticator(t *testing.T, svc *TwoFaService, userID uuid.UUID) (secret string, backupCodes []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := svc.Setup(ctx, userID, MethodAuthenticator, "")
	require.NoError(t, err)
	enabled, err := svc.ConfirmSetup(ctx, userID, gotp.NewDefaultTOTP(setup.Secret).Now())
	require.NoError(t, err)
	return setup.Secret, enabled.BackupCodes
}

func TestSetup_Authenticator(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()

	result, err := svc.Setup(ctx, userID, MethodAuthenticator, "")
	require.NoError(t, err)
	assert.Equal(t, MethodAuthenticator, result.Method)
	assert.NotEmpty(t, result.Secret)
	assert.Contains(t, result.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, result.ProvisioningURI, userID.String())

	// Not enabled until the user proves the authenticator works
	enabled, _, err := svc.Enabled(ctx, userID)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestConfirmSetup_Authenticator(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()

	setup, err := svc.Setup(ctx, userID, MethodAuthenticator, "")
	require.NoError(t, err)

	// A wrong code must not enable anything
	_, err = svc.ConfirmSetup(ctx, userID, "000000")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidVerificationCode))

	// A code produced by an independent TOTP implementation from the
	// same secret must be accepted.
	code := gotp.NewDefaultTOTP(setup.Secret).Now()
	result, err := svc.ConfirmSetup(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, MethodAuthenticator, result.Method)
	assert.Len(t, result.BackupCodes, 10)
	for _, bc := range result.BackupCodes {
		assert.Regexp(t, `^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`, bc)
	}

	enabled, method, err := svc.Enabled(ctx, userID)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, MethodAuthenticator, method)
}

func TestSetup_AlreadyEnabled(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	enableAuthenticator(t, svc, userID)

	_, err := svc.Setup(ctx, userID, MethodSMS, "+15551234567")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeTwoFactorAlreadyEnabled))
}

func TestSetup_SMSRequiresContact(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Setup(ctx, uuid.New(), MethodSMS, "")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidInput))
}

func TestSetup_EmailDeliversCode(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := newTestService(t)
	userID := uuid.New()

	result, err := svc.Setup(ctx, userID, MethodEmail, "user@example.com")
	require.NoError(t, err)
	assert.True(t, result.CodeSent)
	assert.Empty(t, result.Secret)

	require.Len(t, mock.SentNotifications, 1)
	assert.Equal(t, notification.TwoFactorSetupCode, mock.SentTypes[0])
	assert.Equal(t, "user@example.com", mock.SentNotifications[0].To)

	code := lastSentCode(t, mock)
	enabled, err := svc.ConfirmSetup(ctx, userID, code)
	require.NoError(t, err)
	assert.Equal(t, MethodEmail, enabled.Method)
	assert.Len(t, enabled.BackupCodes, 10)
}

func TestSetup_PendingCodeBlocksRestart(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()

	_, err := svc.Setup(ctx, userID, MethodSMS, "+15551234567")
	require.NoError(t, err)

	_, err = svc.Setup(ctx, userID, MethodSMS, "+15551234567")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeSetupCodePending))
}

func TestResendSetupCode_ReplacesCode(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := newTestService(t)
	userID := uuid.New()

	_, err := svc.Setup(ctx, userID, MethodSMS, "+15551234567")
	require.NoError(t, err)
	first := lastSentCode(t, mock)

	require.NoError(t, svc.ResendSetupCode(ctx, userID))
	second := lastSentCode(t, mock)
	assert.Len(t, mock.SentNotifications, 2)

	// The first code is dead once a new one is issued
	if first != second {
		_, err = svc.ConfirmSetup(ctx, userID, first)
		assert.Error(t, err)
	}
	_, err = svc.ConfirmSetup(ctx, userID, second)
	assert.NoError(t, err)
}

func TestVerifyCode_TempCodeExpiry(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := newTestService(t, WithTempCodeTTL(-time.Second))
	userID := uuid.New()

	_, err := svc.Setup(ctx, userID, MethodEmail, "user@example.com")
	require.NoError(t, err)
	code := lastSentCode(t, mock)

	_, err = svc.ConfirmSetup(ctx, userID, code)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeCodeExpired))
}

func TestVerifyCode_AttemptLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo, mock := newTestService(t, WithMaxTempAttempts(3))
	userID := uuid.New()

	_, err := svc.Setup(ctx, userID, MethodEmail, "user@example.com")
	require.NoError(t, err)
	code := lastSentCode(t, mock)

	for i := 0; i < 3; i++ {
		_, err = svc.ConfirmSetup(ctx, userID, "999999")
		assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidVerificationCode))
	}

	// The third miss clears the code, so even the real one is rejected
	profile, err := repo.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, profile.TempCode)

	_, err = svc.ConfirmSetup(ctx, userID, code)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidVerificationCode))
}

func TestVerifyCode_BackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	_, codes := enableAuthenticator(t, svc, userID)

	require.NoError(t, svc.VerifyCode(ctx, userID, codes[0]))

	err := svc.VerifyCode(ctx, userID, codes[0])
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidVerificationCode))

	status, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 9, status.BackupCodesRemaining)
}

func TestVerifyCode_BackupCodeNormalized(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	_, codes := enableAuthenticator(t, svc, userID)

	presented := "  " + strings.ToLower(codes[1]) + " "
	assert.NoError(t, svc.VerifyCode(ctx, userID, presented))
}

func TestVerifyCode_BackupCodeConcurrentConsumption(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	_, codes := enableAuthenticator(t, svc, userID)

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.VerifyCode(ctx, userID, codes[0])
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestChallenge(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := newTestService(t)
	userID := uuid.New()

	_, err := svc.Setup(ctx, userID, MethodEmail, "user@example.com")
	require.NoError(t, err)
	_, err = svc.ConfirmSetup(ctx, userID, lastSentCode(t, mock))
	require.NoError(t, err)

	method, err := svc.Challenge(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, MethodEmail, method)
	assert.Equal(t, notification.TwoFactorCode, mock.SentTypes[len(mock.SentTypes)-1])

	assert.NoError(t, svc.VerifyCode(ctx, userID, lastSentCode(t, mock)))
}

func TestChallenge_AuthenticatorSendsNothing(t *testing.T) {
	ctx := context.Background()
	svc, _, mock := newTestService(t)
	userID := uuid.New()
	enableAuthenticator(t, svc, userID)

	method, err := svc.Challenge(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, MethodAuthenticator, method)
	assert.Empty(t, mock.SentNotifications)
}

type failingNotifier struct {
	err error
}

func (f *failingNotifier) Send(notification.NoticeType, notification.NotificationData, notification.NoticeTemplate) error {
	return f.err
}

func TestChallenge_DeliveryFailureKeepsCodeValid(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	mock := &notification.MockNotifier{}
	nm, err := notification.NewNotificationManagerWithOptions(notification.WithDefaultTemplates())
	require.NoError(t, err)
	nm.RegisterNotifier(notification.EmailSystem, mock)
	svc := NewTwoFaService(repo, nm)
	userID := uuid.New()

	_, err = svc.Setup(ctx, userID, MethodEmail, "user@example.com")
	require.NoError(t, err)
	_, err = svc.ConfirmSetup(ctx, userID, lastSentCode(t, mock))
	require.NoError(t, err)

	// A mail provider outage must not block the login challenge.
	nm.RegisterNotifier(notification.EmailSystem, &failingNotifier{err: errors.New("smtp unavailable")})

	method, err := svc.Challenge(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, MethodEmail, method)

	// The code was stored before the send attempt and still verifies.
	profile, err := repo.GetProfile(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, profile.TempCode)
	assert.NoError(t, svc.VerifyCode(ctx, userID, profile.TempCode))
}

func TestSetup_DeliveryFailureAborts(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	nm, err := notification.NewNotificationManagerWithOptions(notification.WithDefaultTemplates())
	require.NoError(t, err)
	nm.RegisterNotifier(notification.EmailSystem, &failingNotifier{err: errors.New("smtp unavailable")})
	svc := NewTwoFaService(repo, nm)

	_, err = svc.Setup(ctx, uuid.New(), MethodEmail, "user@example.com")
	assert.Error(t, err)
}

func TestChallenge_NotEnabled(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Challenge(ctx, uuid.New())
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeTwoFactorNotEnabled))
}

func TestDisable(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	secret, _ := enableAuthenticator(t, svc, userID)

	err := svc.Disable(ctx, userID, "000000")
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidVerificationCode))

	require.NoError(t, svc.Disable(ctx, userID, gotp.NewDefaultTOTP(secret).Now()))

	enabled, _, err := svc.Enabled(ctx, userID)
	require.NoError(t, err)
	assert.False(t, enabled)

	status, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Zero(t, status.BackupCodesRemaining)
}

func TestDisable_AcceptsBackupCode(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	_, codes := enableAuthenticator(t, svc, userID)

	require.NoError(t, svc.Disable(ctx, userID, codes[3]))
}

func TestRegenerateBackupCodes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	userID := uuid.New()
	secret, oldCodes := enableAuthenticator(t, svc, userID)

	fresh, err := svc.RegenerateBackupCodes(ctx, userID, gotp.NewDefaultTOTP(secret).Now())
	require.NoError(t, err)
	assert.Len(t, fresh, 10)
	assert.NotEqual(t, oldCodes, fresh)

	// Old codes are invalidated by regeneration
	err = svc.VerifyCode(ctx, userID, oldCodes[0])
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeInvalidVerificationCode))

	assert.NoError(t, svc.VerifyCode(ctx, userID, fresh[0]))
}

func TestStatus_NoProfile(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	status, err := svc.Status(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Empty(t, status.Method)
}

func TestTOTPSecretRoundTrip(t *testing.T) {
	secret, uri, err := generateTOTPSecret("Spendlyzer", "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, uri, "issuer=Spendlyzer")

	assert.True(t, validateTOTPCode(gotp.NewDefaultTOTP(secret).Now(), secret))
	assert.False(t, validateTOTPCode("000000", secret))
}

// Codes from the adjacent time steps are accepted; anything further out
// is rejected.
func TestTOTPSkewWindow(t *testing.T) {
	secret, _, err := generateTOTPSecret("Spendlyzer", "user@example.com")
	require.NoError(t, err)

	now := time.Now()
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := totp.GenerateCodeCustom(secret, now.Add(offset), totpOpts)
		require.NoError(t, err)
		assert.True(t, validateTOTPCode(code, secret), "offset %v", offset)
	}
	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		code, err := totp.GenerateCodeCustom(secret, now.Add(offset), totpOpts)
		require.NoError(t, err)
		assert.False(t, validateTOTPCode(code, secret), "offset %v", offset)
	}
}

func TestBackupCodeHashNormalization(t *testing.T) {
	assert.Equal(t, hashBackupCode("ab12-cd34-ef56"), hashBackupCode(" AB12-CD34-EF56 "))
	assert.NotEqual(t, hashBackupCode("AB12-CD34-EF56"), hashBackupCode("AB12-CD34-EF57"))
}
