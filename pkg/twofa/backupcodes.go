package twofa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	backupCodeCount  = 10
	backupCodeGroups = 3
)

// generateBackupCodes returns a fresh set of plaintext backup codes in
// the form XXXX-XXXX-XXXX, where each group is 4 upper-case hex chars.
func generateBackupCodes() ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		groups := make([]string, 0, backupCodeGroups)
		for j := 0; j < backupCodeGroups; j++ {
			buf := make([]byte, 2)
			if _, err := rand.Read(buf); err != nil {
				return nil, fmt.Errorf("failed to generate backup code: %w", err)
			}
			groups = append(groups, strings.ToUpper(hex.EncodeToString(buf)))
		}
		codes = append(codes, strings.Join(groups, "-"))
	}
	return codes, nil
}

// hashBackupCode digests a normalized backup code for storage. Codes
// are compared by digest only, plaintext is never persisted.
func hashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// generateTempCode returns a 6-digit zero-padded numeric code for SMS
// and email delivery.
func generateTempCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	n := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}
