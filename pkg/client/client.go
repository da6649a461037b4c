package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// AuthUser is the authenticated caller extracted from access token claims.
type AuthUser struct {
	UserID       string `json:"sub,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	TokenVersion int64  `json:"token_version,omitempty"`
	JTI          string `json:"jti,omitempty"`
	// UserUUID is UserID parsed for direct use.
	UserUUID uuid.UUID `json:"-"`
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", u.UserID),
		slog.String("username", u.Username),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "auth context value " + k.name
}

var AuthUserKey = &contextKey{"AuthUser"}

const (
	ACCESS_TOKEN_NAME = "access_token"
	TEMP_TOKEN_NAME   = "temp_token"
)

// LoadFromMap populates c from a claims map via JSON round-trip.
func LoadFromMap[T any](m map[string]interface{}, c *T) error {
	data, err := json.Marshal(m)
	if err == nil {
		err = json.Unmarshal(data, c)
	}
	return err
}

// GetAuthUser returns the authenticated user placed in the context by
// AuthUserMiddleware, or nil when the request is unauthenticated.
func GetAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(AuthUserKey).(*AuthUser)
	return user
}

// AuthUserMiddleware extracts the AuthUser from verified JWT claims and
// places it in the request context. Must run after Verifier.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("missing or invalid JWT: %v", err), http.StatusUnauthorized)
			return
		}
		if claims == nil {
			http.Error(w, "missing JWT claims", http.StatusUnauthorized)
			return
		}

		authUser := new(AuthUser)
		if err := LoadFromMap(claims, authUser); err != nil {
			slog.Error("failed to parse token claims", "error", err)
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		if authUser.UserID == "" {
			http.Error(w, "missing user ID in token", http.StatusUnauthorized)
			return
		}

		userUUID, err := uuid.Parse(authUser.UserID)
		if err != nil {
			http.Error(w, "invalid user ID in token", http.StatusUnauthorized)
			return
		}
		authUser.UserUUID = userUUID

		slog.Debug("authenticated user", "user_id", authUser.UserID)

		ctx := context.WithValue(r.Context(), AuthUserKey, authUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verifier verifies tokens from the Authorization header or the access
// token cookie.
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// TempTokenFromHeader extracts a pending-challenge token sent as its own
// header instead of the Authorization header.
func TempTokenFromHeader(r *http.Request) string {
	return r.Header.Get(TEMP_TOKEN_NAME)
}
