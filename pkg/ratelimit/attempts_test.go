package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemAttemptLimiter_BlocksAfterMax(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemAttemptLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.RecordAttempt(ctx, "user1")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)
	}

	allowed, err := limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, allowed, "4th attempt should be blocked")

	// A different key has its own counter
	allowed, err = limiter.RecordAttempt(ctx, "user2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestInMemAttemptLimiter_Clear(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemAttemptLimiter(1, time.Minute)

	allowed, err := limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, limiter.Clear(ctx, "user1"))

	allowed, err = limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, allowed, "attempt after clear should be allowed")
}

func TestInMemAttemptLimiter_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemAttemptLimiter(1, 50*time.Millisecond)

	allowed, err := limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(80 * time.Millisecond)

	allowed, err = limiter.RecordAttempt(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, allowed, "attempt after window expiry should be allowed")
}
