package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// EndpointLimit defines the rate limit for a specific "METHOD /path" key.
type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

// Config holds HTTP rate limiting configuration.
type Config struct {
	PerIPCapacity   int
	PerIPRefillRate float64

	// EndpointLimits keys are "METHOD /path"; limited per client IP.
	EndpointLimits map[string]EndpointLimit

	// BucketTTL bounds how long idle buckets stay in memory.
	BucketTTL time.Duration
}

// DefaultConfig allows 100 requests per minute per IP with no
// endpoint-specific limits.
func DefaultConfig() *Config {
	return &Config{
		PerIPCapacity:   100,
		PerIPRefillRate: 100.0 / 60.0,
		EndpointLimits:  make(map[string]EndpointLimit),
		BucketTTL:       time.Hour,
	}
}

// Middleware applies per-IP and per-endpoint rate limits.
type Middleware struct {
	config           *Config
	ipLimiter        *RateLimiter
	endpointLimiters map[string]*RateLimiter
}

// NewMiddleware creates the rate limiting middleware.
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{
		config:           config,
		endpointLimiters: make(map[string]*RateLimiter),
	}
	if config.PerIPCapacity > 0 {
		m.ipLimiter = NewRateLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL)
	}
	for endpoint, limit := range config.EndpointLimits {
		m.endpointLimiters[endpoint] = NewRateLimiter(limit.Capacity, limit.RefillRate, config.BucketTTL)
	}
	return m
}

// Handler returns the rate limiting middleware handler.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		if m.ipLimiter != nil && ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip")
			return
		}

		endpointKey := r.Method + " " + r.URL.Path
		if limiter, exists := m.endpointLimiters[endpointKey]; exists {
			if !limiter.Allow(ip + ":" + endpointKey) {
				m.rateLimitExceeded(w, r, "endpoint")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", ClientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"code":"RATE_LIMIT_EXCEEDED","message":"too many requests","type":%q}`, limitType)
}

// ClientIP extracts the client IP address from the request, preferring
// proxy headers over RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
