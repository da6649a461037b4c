package tokengenerator

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token and cookie name constants
const (
	ACCESS_TOKEN_NAME         = "access_token"
	TEMP_TOKEN_NAME           = "temp_token"
	TRUSTED_DEVICE_TOKEN_NAME = "trusted_device_token"
)

// Default token expiry durations
const (
	DefaultAccessTokenExpiry = 30 * time.Minute
	DefaultTempTokenExpiry   = 5 * time.Minute
)

// TokenValue pairs an issued token string with its expiry time.
type TokenValue struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// JwtService provides JWT token generation and cookie management
type JwtService struct {
	TokenGenerators       map[string]TokenGenerator
	DefaultTokenGenerator TokenGenerator
	CookieSetters         map[string]CookieSetter
	DefaultCookieSetter   CookieSetter

	AccessTokenExpiry time.Duration
	TempTokenExpiry   time.Duration
}

// JwtServiceOption is a function that configures a JwtService
type JwtServiceOption func(*JwtService)

// WithTokenGenerator sets the token generator for a specific token name
func WithTokenGenerator(tokenName string, tokenGenerator TokenGenerator) JwtServiceOption {
	return func(js *JwtService) {
		if js.TokenGenerators == nil {
			js.TokenGenerators = make(map[string]TokenGenerator)
		}
		js.TokenGenerators[tokenName] = tokenGenerator
	}
}

// WithDefaultTokenGenerator sets the default token generator
func WithDefaultTokenGenerator(tokenGenerator TokenGenerator) JwtServiceOption {
	return func(js *JwtService) {
		js.DefaultTokenGenerator = tokenGenerator
	}
}

// WithCookieSetter sets the cookie setter for a specific cookie name
func WithCookieSetter(cookieName string, cookieSetter CookieSetter) JwtServiceOption {
	return func(js *JwtService) {
		if js.CookieSetters == nil {
			js.CookieSetters = make(map[string]CookieSetter)
		}
		js.CookieSetters[cookieName] = cookieSetter
	}
}

// WithAccessTokenExpiry sets the access token expiry duration
func WithAccessTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.AccessTokenExpiry = expiry
	}
}

// WithTempTokenExpiry sets the temporary token expiry duration
func WithTempTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.TempTokenExpiry = expiry
	}
}

// NewJwtService creates a new JwtService
func NewJwtService(options ...JwtServiceOption) *JwtService {
	js := &JwtService{
		TokenGenerators:     make(map[string]TokenGenerator),
		CookieSetters:       make(map[string]CookieSetter),
		DefaultCookieSetter: NewCookieSetter(true, true),
		AccessTokenExpiry:   DefaultAccessTokenExpiry,
		TempTokenExpiry:     DefaultTempTokenExpiry,
	}

	for _, option := range options {
		option(js)
	}

	return js
}

// GenerateToken generates a token with the given parameters
func (js *JwtService) GenerateToken(tokenName, subject string, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error) {
	tokenGenerator, ok := js.TokenGenerators[tokenName]
	if !ok {
		tokenGenerator = js.DefaultTokenGenerator
	}

	var expiry time.Duration
	switch tokenName {
	case TEMP_TOKEN_NAME:
		expiry = js.TempTokenExpiry
	default:
		expiry = js.AccessTokenExpiry
	}

	return tokenGenerator.GenerateToken(subject, expiry, rootModifications, extraClaims)
}

// ParseToken parses and validates a token
func (js *JwtService) ParseToken(tokenName, tokenStr string) (*jwt.Token, error) {
	tokenGenerator, ok := js.TokenGenerators[tokenName]
	if !ok {
		tokenGenerator = js.DefaultTokenGenerator
	}
	return tokenGenerator.ParseToken(tokenStr)
}

// SetCookie sets a cookie using the cookie setter for the given cookie name
func (js *JwtService) SetCookie(w http.ResponseWriter, cookieName string, tokenValue string, expire time.Time) error {
	cookieSetter, ok := js.CookieSetters[cookieName]
	if !ok {
		cookieSetter = js.DefaultCookieSetter
	}
	return cookieSetter.SetCookie(w, cookieName, tokenValue, expire)
}

// ClearCookie clears a cookie using the cookie setter for the given cookie name
func (js *JwtService) ClearCookie(w http.ResponseWriter, cookieName string) error {
	cookieSetter, ok := js.CookieSetters[cookieName]
	if !ok {
		cookieSetter = js.DefaultCookieSetter
	}
	return cookieSetter.ClearCookie(w, cookieName)
}

// SetTrustedDeviceCookie stores a newly issued trust token on the client.
func (js *JwtService) SetTrustedDeviceCookie(w http.ResponseWriter, token string, expire time.Time) error {
	return js.SetCookie(w, TRUSTED_DEVICE_TOKEN_NAME, token, expire)
}

// ClearTrustedDeviceCookie removes the trust token from the client.
func (js *JwtService) ClearTrustedDeviceCookie(w http.ResponseWriter) error {
	return js.ClearCookie(w, TRUSTED_DEVICE_TOKEN_NAME)
}
