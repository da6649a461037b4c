package twofa

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpOpts matches what authenticator apps assume by default. Changing
// these invalidates codes for already provisioned secrets.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// generateTOTPSecret provisions a new TOTP key for the account and
// returns the base32 secret plus the otpauth:// URI for QR enrollment.
func generateTOTPSecret(issuer, accountName string) (secret, provisioningURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// validateTOTPCode checks a code against the secret, accepting one
// period of clock skew in either direction.
func validateTOTPCode(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totpOpts)
	if err != nil {
		return false
	}
	return valid
}
