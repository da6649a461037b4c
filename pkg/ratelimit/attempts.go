package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter bounds how many times an operation may be tried per key
// within a window. Unlike the token bucket it is failure-oriented: the
// counter is bumped on every attempt and cleared explicitly on success.
type AttemptLimiter interface {
	// RecordAttempt increments the counter for key and reports whether the
	// attempt is still within the allowed budget.
	RecordAttempt(ctx context.Context, key string) (bool, error)
	// Clear resets the counter for key.
	Clear(ctx context.Context, key string) error
}

// RedisAttemptLimiter counts attempts in Redis with INCR, setting the
// window expiry on the first attempt.
type RedisAttemptLimiter struct {
	client      *redis.Client
	prefix      string
	maxAttempts int64
	window      time.Duration
}

// NewRedisAttemptLimiter creates an attempt limiter allowing maxAttempts
// per key within window.
func NewRedisAttemptLimiter(client *redis.Client, prefix string, maxAttempts int64, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (l *RedisAttemptLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

func (l *RedisAttemptLimiter) RecordAttempt(ctx context.Context, key string) (bool, error) {
	redisKey := l.key(key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set attempt window: %w", err)
		}
	}

	return count <= l.maxAttempts, nil
}

func (l *RedisAttemptLimiter) Clear(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to clear attempt counter: %w", err)
	}
	return nil
}

// InMemAttemptLimiter is a process-local AttemptLimiter for tests and
// single-instance deployments.
type InMemAttemptLimiter struct {
	maxAttempts int64
	window      time.Duration
	mu          sync.Mutex
	counters    map[string]*attemptWindow
}

type attemptWindow struct {
	count     int64
	expiresAt time.Time
}

func NewInMemAttemptLimiter(maxAttempts int64, window time.Duration) *InMemAttemptLimiter {
	return &InMemAttemptLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		counters:    make(map[string]*attemptWindow),
	}
}

func (l *InMemAttemptLimiter) RecordAttempt(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.counters[key]
	if !exists || now.After(w.expiresAt) {
		w = &attemptWindow{expiresAt: now.Add(l.window)}
		l.counters[key] = w
	}
	w.count++

	return w.count <= l.maxAttempts, nil
}

func (l *InMemAttemptLimiter) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, key)
	return nil
}
