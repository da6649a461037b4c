package tokengenerator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenGenerator interface defines methods for token operations
type TokenGenerator interface {
	// GenerateToken generates a token with the given subject, expiry, root modifications and extra claims
	GenerateToken(subject string, expiry time.Duration, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error)

	// ParseToken parses and validates a token
	ParseToken(tokenStr string) (*jwt.Token, error)
}

// Claims struct for JWT claims. Username, Email, and TokenVersion live at
// the root of the payload so middleware can read them without digging into
// extra_claims.
type Claims struct {
	ExtraClaims  interface{} `json:"extra_claims,omitempty"`
	Username     string      `json:"username,omitempty"`
	Email        string      `json:"email,omitempty"`
	TokenVersion int64       `json:"token_version,omitempty"`
	jwt.RegisteredClaims
}

// JwtTokenGenerator issues HS256 access tokens.
type JwtTokenGenerator struct {
	Secret   string
	Issuer   string
	Audience string
}

// NewJwtTokenGenerator creates a new JwtTokenGenerator
func NewJwtTokenGenerator(secret, issuer, audience string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
	}
}

// GenerateToken creates a new token with the given subject and claims.
// Recognized rootModifications keys ("username", "email", "token_version",
// "jti") override the corresponding root claims.
func (g *JwtTokenGenerator) GenerateToken(subject string, expiry time.Duration, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error) {
	claims := Claims{
		ExtraClaims: extraClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			NotBefore: jwt.NewNumericDate(time.Now().UTC().Add(-5 * time.Minute)),
			Issuer:    g.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{g.Audience},
		},
	}

	for key, value := range rootModifications {
		switch key {
		case "username":
			if v, ok := value.(string); ok {
				claims.Username = v
			}
		case "email":
			if v, ok := value.(string); ok {
				claims.Email = v
			}
		case "token_version":
			switch v := value.(type) {
			case int64:
				claims.TokenVersion = v
			case int:
				claims.TokenVersion = int64(v)
			}
		case "jti":
			if v, ok := value.(string); ok {
				claims.ID = v
			}
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signingKey := []byte(g.Secret)
	ss, err := signedString(signingKey, token)
	if err != nil {
		slog.Error("Failed sign JWT Claim string!", "err", err)
		return "", time.Time{}, err
	}
	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a token string
func (g *JwtTokenGenerator) ParseToken(tokenStr string) (*jwt.Token, error) {
	return ParseTokenStr(g.Secret, tokenStr)
}

// TempTokenGenerator issues the short-lived pending-challenge tokens handed
// out when a login still needs second-factor verification. The pending
// marker is stamped at generation time so a temp token can never be minted
// without it.
type TempTokenGenerator struct {
	Secret   string
	Issuer   string
	Audience string
}

// NewTempTokenGenerator creates a new TempTokenGenerator
func NewTempTokenGenerator(secret, issuer, audience string) *TempTokenGenerator {
	return &TempTokenGenerator{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
	}
}

// GenerateToken creates a pending-challenge token. extraClaims must carry
// the user_id of the challenged login.
func (g *TempTokenGenerator) GenerateToken(subject string, expiry time.Duration, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error) {
	if extraClaims == nil {
		return "", time.Time{}, fmt.Errorf("extra claims not found")
	}
	if _, exists := extraClaims["user_id"]; !exists {
		return "", time.Time{}, fmt.Errorf("user_id not found in claims")
	}

	tempClaims := map[string]interface{}{
		"user_id":     extraClaims["user_id"],
		"2fa_pending": true,
	}
	if method, exists := extraClaims["two_factor_method"]; exists {
		tempClaims["two_factor_method"] = method
	}

	claims := Claims{
		ExtraClaims: tempClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			NotBefore: jwt.NewNumericDate(time.Now().UTC().Add(-1 * time.Minute)), // shorter skew tolerance for temp tokens
			Issuer:    g.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{g.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signingKey := []byte(g.Secret)
	ss, err := signedString(signingKey, token)
	if err != nil {
		slog.Error("Failed to sign temporary JWT token", "err", err)
		return "", time.Time{}, err
	}

	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a temporary token
func (g *TempTokenGenerator) ParseToken(tokenStr string) (*jwt.Token, error) {
	return ParseTokenStr(g.Secret, tokenStr)
}
