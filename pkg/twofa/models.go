package twofa

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Method is a second-factor delivery mechanism.
type Method string

const (
	MethodAuthenticator Method = "authenticator"
	MethodSMS           Method = "sms"
	MethodEmail         Method = "email"
)

// ParseMethod validates a method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuthenticator, MethodSMS, MethodEmail:
		return Method(s), nil
	}
	return "", fmt.Errorf("invalid two-factor method: %q", s)
}

// Profile is a user's second-factor configuration. A profile exists from
// the moment setup starts; Enabled flips only after the user proves the
// method works. TOTPSecret and TempCode are never logged.
type Profile struct {
	UserID            uuid.UUID
	Enabled           bool
	Method            Method
	TOTPSecret        string
	Contact           string // phone number for sms, email address for email
	TempCode          string
	TempCodeExpiresAt *time.Time
	TempCodeAttempts  int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TempCodeOutstanding reports whether an unexpired delivered code exists.
func (p *Profile) TempCodeOutstanding() bool {
	return p.TempCode != "" && p.TempCodeExpiresAt != nil && time.Now().UTC().Before(*p.TempCodeExpiresAt)
}

// BackupCode is a stored single-use recovery code digest.
type BackupCode struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	CodeHash string
	IsUsed   bool
	UsedAt   *time.Time
}

// SetupResult is returned when setup starts.
type SetupResult struct {
	Method          Method `json:"method"`
	Secret          string `json:"secret,omitempty"`           // authenticator only
	ProvisioningURI string `json:"provisioning_uri,omitempty"` // authenticator only
	CodeSent        bool   `json:"code_sent,omitempty"`        // sms/email only
}

// EnableResult is returned when setup is confirmed. BackupCodes holds the
// plaintext recovery codes, shown exactly once.
type EnableResult struct {
	Method      Method   `json:"method"`
	BackupCodes []string `json:"backup_codes"`
}

// Status is the queryable view of a user's second-factor state.
type Status struct {
	Enabled              bool   `json:"enabled"`
	Method               Method `json:"method,omitempty"`
	BackupCodesRemaining int    `json:"backup_codes_remaining"`
}
