package trusteddevice

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlyzer/auth/pkg/device"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/geo"
)

const testUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *InMemRepository) {
	t.Helper()
	repo := NewInMemRepository()
	locator := geo.StaticLocator{Result: geo.Location{
		City: "Berlin", Region: "Berlin", Country: "Germany", CountryCode: "DE",
	}}
	return NewService(repo, locator, opts...), repo
}

func testFingerprint() device.FingerprintData {
	return device.FingerprintData{
		UserAgent: testUA,
		IPAddress: "198.51.100.7",
	}
}

func TestTrustAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	userID := uuid.New()
	fp := testFingerprint()

	token, created, err := svc.Trust(ctx, userID, fp)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, token)
	assert.Equal(t, "Desktop - Windows - Chrome", created.DeviceName)
	assert.Equal(t, "DE", created.CountryCode)
	assert.True(t, created.IsActive)

	verified, err := svc.Verify(ctx, userID, token, fp)
	require.NoError(t, err)
	assert.Equal(t, created.ID, verified.ID)
}

func TestVerify_TokenNeverStoredInPlaintext(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID := uuid.New()

	token, created, err := svc.Trust(ctx, userID, testFingerprint())
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.TokenHash)
	assert.Len(t, stored.TokenHash, 64)
}

func TestVerify_TamperedToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	userID := uuid.New()
	fp := testFingerprint()

	token, _, err := svc.Trust(ctx, userID, fp)
	require.NoError(t, err)

	// Flip one character of the presented token
	tampered := []byte(token)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}

	_, err = svc.Verify(ctx, userID, string(tampered), fp)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))
}

func TestVerify_EmptyToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Verify(ctx, uuid.New(), "", testFingerprint())
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))
}

func TestVerify_FingerprintMismatchDeactivates(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID := uuid.New()

	token, created, err := svc.Trust(ctx, userID, testFingerprint())
	require.NoError(t, err)

	otherFp := testFingerprint()
	otherFp.UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"

	_, err = svc.Verify(ctx, userID, token, otherFp)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, string(ReasonFingerprintMismatch), stored.DeactivatedFor)

	// The deactivated device must not verify again, even with the
	// original fingerprint.
	_, err = svc.Verify(ctx, userID, token, testFingerprint())
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))
}

func TestVerify_CountryMismatchDeactivates(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	locator := &switchableLocator{result: geo.Location{City: "Berlin", Country: "Germany", CountryCode: "DE"}}
	svc := NewService(repo, locator)
	userID := uuid.New()
	fp := testFingerprint()

	token, created, err := svc.Trust(ctx, userID, fp)
	require.NoError(t, err)

	locator.result = geo.Location{City: "Sydney", Country: "Australia", CountryCode: "AU"}

	_, err = svc.Verify(ctx, userID, token, fp)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(ReasonGeographicRestriction), stored.DeactivatedFor)
}

func TestVerify_UnknownCountryPasses(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	locator := &switchableLocator{result: geo.Location{City: "Berlin", Country: "Germany", CountryCode: "DE"}}
	svc := NewService(repo, locator)
	userID := uuid.New()
	fp := testFingerprint()

	token, _, err := svc.Trust(ctx, userID, fp)
	require.NoError(t, err)

	// Resolver outage: current location is unknown, check passes
	locator.result = geo.Unknown()
	_, err = svc.Verify(ctx, userID, token, fp)
	assert.NoError(t, err)
}

func TestVerify_ExpiredDeviceDeactivates(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, WithTrustTTL(-time.Minute))
	userID := uuid.New()
	fp := testFingerprint()

	token, created, err := svc.Trust(ctx, userID, fp)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, userID, token, fp)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, string(ReasonExpired), stored.DeactivatedFor)
}

func TestTrust_DeviceLimitEvictsLRU(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, WithMaxDevices(3))
	userID := uuid.New()

	var firstID uuid.UUID
	for i := 0; i < 3; i++ {
		fp := testFingerprint()
		fp.IPAddress = fmt.Sprintf("198.51.100.%d", i+1)
		_, created, err := svc.Trust(ctx, userID, fp)
		require.NoError(t, err)
		if i == 0 {
			firstID = created.ID
		}
		// Make last_used_at ordering deterministic
		time.Sleep(2 * time.Millisecond)
	}

	active, err := repo.ListActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	// The 4th device pushes the user over the cap, evicting the LRU entry
	_, _, err = svc.Trust(ctx, userID, testFingerprint())
	require.NoError(t, err)

	active, err = repo.ListActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	evicted, err := repo.GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.False(t, evicted.IsActive)
	assert.Equal(t, string(ReasonDeviceLimitExceeded), evicted.DeactivatedFor)
}

func TestTrust_ConcurrentStaysUnderLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, WithMaxDevices(5))
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := testFingerprint()
			fp.IPAddress = fmt.Sprintf("203.0.113.%d", i+1)
			_, _, err := svc.Trust(ctx, userID, fp)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	active, err := repo.ListActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(active), 5)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID := uuid.New()

	_, created, err := svc.Trust(ctx, userID, testFingerprint())
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, userID, created.ID))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, string(ReasonUserRevoked), stored.DeactivatedFor)

	// Revoking twice is idempotent
	assert.NoError(t, svc.Revoke(ctx, userID, created.ID))
}

func TestRevoke_OtherUsersDevice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	owner := uuid.New()

	_, created, err := svc.Trust(ctx, owner, testFingerprint())
	require.NoError(t, err)

	err = svc.Revoke(ctx, uuid.New(), created.ID)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeNotFound))
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		fp := testFingerprint()
		fp.IPAddress = fmt.Sprintf("198.51.100.%d", i+1)
		_, _, err := svc.Trust(ctx, userID, fp)
		require.NoError(t, err)
	}

	count, err := svc.RevokeAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	active, err := repo.ListActiveByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRevokeAll_OldTokensStopVerifying(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	userID := uuid.New()
	fp := testFingerprint()

	token, _, err := svc.Trust(ctx, userID, fp)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, userID, token, fp)
	require.NoError(t, err)

	_, err = svc.RevokeAll(ctx, userID)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, userID, token, fp)
	assert.True(t, autherr.IsCode(err, autherr.ErrCodeDeviceNotTrusted))
}

// switchableLocator lets a test change the resolved location between calls.
type switchableLocator struct {
	result geo.Location
}

func (l *switchableLocator) Locate(ctx context.Context, ip string) geo.Location {
	return l.result
}
