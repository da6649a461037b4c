package tokengenerator

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret-key-for-unit-tests"
	testIssuer   = "spendlyzer-auth"
	testAudience = "spendlyzer"
)

func TestJwtTokenGenerator_RootClaims(t *testing.T) {
	gen := NewJwtTokenGenerator(testSecret, testIssuer, testAudience)
	userID := uuid.New().String()
	jti := uuid.New().String()

	tokenStr, expiry, err := gen.GenerateToken(userID, 30*time.Minute, map[string]interface{}{
		"username":      "alice",
		"email":         "alice@example.com",
		"token_version": int64(3),
		"jti":           jti,
	}, nil)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiry, time.Minute)

	token, err := gen.ParseToken(tokenStr)
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, userID, claims["sub"])
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.EqualValues(t, 3, claims["token_version"])
	assert.Equal(t, jti, claims["jti"])
	assert.Equal(t, testIssuer, claims["iss"])
}

func TestJwtTokenGenerator_WrongSecretRejected(t *testing.T) {
	gen := NewJwtTokenGenerator(testSecret, testIssuer, testAudience)
	tokenStr, _, err := gen.GenerateToken(uuid.New().String(), 30*time.Minute, nil, nil)
	require.NoError(t, err)

	other := NewJwtTokenGenerator("a-different-secret", testIssuer, testAudience)
	_, err = other.ParseToken(tokenStr)
	assert.Error(t, err)
}

func TestJwtTokenGenerator_ExpiredRejected(t *testing.T) {
	gen := NewJwtTokenGenerator(testSecret, testIssuer, testAudience)
	tokenStr, _, err := gen.GenerateToken(uuid.New().String(), -time.Minute, nil, nil)
	require.NoError(t, err)

	_, err = gen.ParseToken(tokenStr)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTempTokenGenerator_StampsPendingMarker(t *testing.T) {
	gen := NewTempTokenGenerator(testSecret, testIssuer, testAudience)
	userID := uuid.New().String()

	tokenStr, _, err := gen.GenerateToken(userID, 5*time.Minute, nil, map[string]interface{}{
		"user_id":           userID,
		"two_factor_method": "email",
	})
	require.NoError(t, err)

	token, err := gen.ParseToken(tokenStr)
	require.NoError(t, err)

	extra := ExtraClaims(token)
	assert.Equal(t, true, extra["2fa_pending"])
	assert.Equal(t, userID, extra["user_id"])
	assert.Equal(t, "email", extra["two_factor_method"])
}

func TestTempTokenGenerator_RequiresUserID(t *testing.T) {
	gen := NewTempTokenGenerator(testSecret, testIssuer, testAudience)

	_, _, err := gen.GenerateToken("subject", 5*time.Minute, nil, nil)
	assert.Error(t, err)

	_, _, err = gen.GenerateToken("subject", 5*time.Minute, nil, map[string]interface{}{
		"two_factor_method": "sms",
	})
	assert.Error(t, err)
}

func TestJwtService_RoutesByTokenName(t *testing.T) {
	accessGen := NewJwtTokenGenerator(testSecret, testIssuer, testAudience)
	tempGen := NewTempTokenGenerator(testSecret, testIssuer, testAudience)
	svc := NewJwtService(
		WithDefaultTokenGenerator(accessGen),
		WithTokenGenerator(TEMP_TOKEN_NAME, tempGen),
		WithTempTokenExpiry(time.Minute),
	)
	userID := uuid.New().String()

	tokenStr, expiry, err := svc.GenerateToken(TEMP_TOKEN_NAME, userID, nil, map[string]interface{}{
		"user_id": userID,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiry, 10*time.Second)

	token, err := svc.ParseToken(TEMP_TOKEN_NAME, tokenStr)
	require.NoError(t, err)
	assert.Equal(t, true, ExtraClaims(token)["2fa_pending"])

	// Unregistered names fall back to the default generator
	accessStr, _, err := svc.GenerateToken(ACCESS_TOKEN_NAME, userID, nil, nil)
	require.NoError(t, err)
	parsed, err := svc.ParseToken(ACCESS_TOKEN_NAME, accessStr)
	require.NoError(t, err)
	assert.Empty(t, ExtraClaims(parsed))
}

func TestExtraClaims_MissingIsEmpty(t *testing.T) {
	gen := NewJwtTokenGenerator(testSecret, testIssuer, testAudience)
	tokenStr, _, err := gen.GenerateToken(uuid.New().String(), time.Minute, nil, nil)
	require.NoError(t, err)

	token, err := gen.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Empty(t, ExtraClaims(token))
}
