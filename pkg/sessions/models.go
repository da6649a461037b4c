package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session is an active authentication session, keyed by the JTI of the
// access token that created it.
type Session struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	JTI             string     `json:"jti"`
	TrustedDeviceID *uuid.UUID `json:"trusted_device_id,omitempty"`
	DeviceInfo      string     `json:"device_info,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	LastActivity    time.Time  `json:"last_activity"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SessionSummary is the listing view of a session. IsCurrentSession is
// computed against the caller's JTI, never stored.
type SessionSummary struct {
	ID               uuid.UUID  `json:"id"`
	DeviceInfo       string     `json:"device_info"`
	IPAddress        string     `json:"ip_address"`
	LastActivity     time.Time  `json:"last_activity"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	IsCurrentSession bool       `json:"is_current_session"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

// CreateSessionRequest carries the parameters for a new session.
type CreateSessionRequest struct {
	UserID          uuid.UUID  `json:"user_id"`
	JTI             string     `json:"jti"`
	TrustedDeviceID *uuid.UUID `json:"trusted_device_id,omitempty"`
	DeviceInfo      string     `json:"device_info,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// SessionListResponse is the result of listing a user's sessions.
type SessionListResponse struct {
	Sessions    []SessionSummary `json:"sessions"`
	Total       int              `json:"total"`
	ActiveCount int              `json:"active_count"`
	CurrentJTI  string           `json:"current_jti"`
}
