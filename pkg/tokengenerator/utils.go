package tokengenerator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// signedString creates and returns a complete, signed JWT using the
// SigningMethod specified in the token.
func signedString(key interface{}, t *jwt.Token) (string, error) {
	sstr, err := signingString(t)
	if err != nil {
		return "", err
	}
	sig, err := t.Method.Sign(sstr, key)
	if err != nil {
		return "", err
	}
	encodedSig := base64.RawURLEncoding.EncodeToString(sig)
	return strings.Join([]string{sstr, encodedSig}, "."), nil
}

// signingString generates the header.claims segment to be signed.
func signingString(t *jwt.Token) (string, error) {
	headerJSON, err := json.Marshal(t.Header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(t.Claims)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		base64.RawURLEncoding.EncodeToString(headerJSON),
		base64.RawURLEncoding.EncodeToString(claimsJSON),
	}, "."), nil
}

// ParseTokenStr parses and validates an HS256 token string.
func ParseTokenStr(secret string, tokenStr string) (*jwt.Token, error) {
	signingKey := []byte(secret)
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if err != nil {
		slog.Error("Failed parse JWT string!", "err", err)
		return token, err
	}

	if token.Valid {
		return token, nil
	}

	return token, fmt.Errorf("failed_parse_token_claims")
}

// ExtraClaims extracts the extra_claims map from parsed token claims,
// returning an empty map when absent.
func ExtraClaims(token *jwt.Token) map[string]interface{} {
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return map[string]interface{}{}
	}
	extra, ok := mapClaims["extra_claims"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return extra
}
