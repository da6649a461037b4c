package client

import (
	"log/slog"
	"net/http"

	"github.com/spendlyzer/auth/pkg/loginflow"
)

// RequireAuth requires a valid authenticated user in the context.
// Returns 401 Unauthorized otherwise. Must be used after AuthUserMiddleware.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthUser(r.Context()) == nil {
			slog.Debug("Unauthenticated request to protected resource")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFreshnessMiddleware rejects tokens that are cryptographically valid
// but no longer current: the credential's token_version has moved on (a
// password reset) or the session's JTI has been revoked. Must be used
// after AuthUserMiddleware.
func TokenFreshnessMiddleware(flow *loginflow.LoginFlowService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser := GetAuthUser(r.Context())
			if authUser == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := flow.ValidateAccess(r.Context(), authUser.UserUUID, authUser.TokenVersion, authUser.JTI); err != nil {
				slog.Debug("Stale access token rejected", "user_id", authUser.UserID)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
