package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/spendlyzer/auth/pkg/audit"
	"github.com/spendlyzer/auth/pkg/client"
	"github.com/spendlyzer/auth/pkg/device"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/login"
	"github.com/spendlyzer/auth/pkg/loginflow"
	"github.com/spendlyzer/auth/pkg/ratelimit"
	tg "github.com/spendlyzer/auth/pkg/tokengenerator"
)

// AuthHandler handles HTTP requests for signin, challenge verification,
// registration and password reset.
type AuthHandler struct {
	flow         *loginflow.LoginFlowService
	loginService *login.LoginService
	jwtService   *tg.JwtService
	auditSink    audit.Sink
}

// AuthHandlerOption configures an AuthHandler.
type AuthHandlerOption func(*AuthHandler)

// WithAuditSink sets the audit sink.
func WithAuditSink(sink audit.Sink) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.auditSink = sink
	}
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(flow *loginflow.LoginFlowService, loginService *login.LoginService, jwtService *tg.JwtService, opts ...AuthHandlerOption) *AuthHandler {
	h := &AuthHandler{
		flow:         flow,
		loginService: loginService,
		jwtService:   jwtService,
		auditSink:    audit.NoOpSink{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the unauthenticated auth routes.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signin", h.Signin)
	r.Post("/verify-2fa", h.VerifyTwoFA)
	r.Post("/register", h.Register)
	return r
}

// AuthedRoutes returns the auth routes that require a valid access token.
func (h *AuthHandler) AuthedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/reset-password", h.ResetPassword)
	return r
}

// SigninRequest is the request body for signing in.
type SigninRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// SigninResponse is the response body for a completed or challenged signin.
type SigninResponse struct {
	Status            string `json:"status"`
	AccessToken       string `json:"access_token,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
	Method            string `json:"method,omitempty"`
	TempToken         string `json:"temp_token,omitempty"`
}

// Signin handles POST /auth/signin.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Login == "" || req.Password == "" {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "login and password are required"))
		return
	}

	ip := ratelimit.ClientIP(r)
	result := h.flow.Signin(r.Context(), loginflow.SigninRequest{
		Login:              req.Login,
		Password:           req.Password,
		IPAddress:          ip,
		UserAgent:          r.UserAgent(),
		Fingerprint:        device.ExtractFromRequest(r, ip),
		TrustedDeviceToken: trustedDeviceTokenFromCookie(r),
	})
	if result.Error != nil {
		renderError(w, r, result.Error)
		return
	}

	if result.TwoFactorRequired {
		temp := result.Tokens[tg.TEMP_TOKEN_NAME]
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, SigninResponse{
			Status:            "2fa_required",
			TwoFactorRequired: true,
			Method:            string(result.Method),
			TempToken:         temp.Token,
			ExpiresAt:         temp.Expiry.Format(time.RFC3339),
		})
		return
	}

	h.renderLoginSuccess(w, r, result)
}

// VerifyTwoFARequest is the request body for finishing a challenged login.
type VerifyTwoFARequest struct {
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device,omitempty"`
	// TempToken may carry the pending token when the Authorization
	// header is unavailable.
	TempToken string `json:"temp_token,omitempty"`
}

// VerifyTwoFA handles POST /auth/verify-2fa. The pending token comes
// from the Authorization header as a bearer token.
func (h *AuthHandler) VerifyTwoFA(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFARequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Code == "" {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "code is required"))
		return
	}

	pendingToken := tokenFromBearer(r)
	if pendingToken == "" {
		pendingToken = req.TempToken
	}

	ip := ratelimit.ClientIP(r)
	result := h.flow.VerifyTwoFA(r.Context(), loginflow.VerifyTwoFARequest{
		PendingToken:   pendingToken,
		Code:           req.Code,
		RememberDevice: req.RememberDevice,
		IPAddress:      ip,
		UserAgent:      r.UserAgent(),
		Fingerprint:    device.ExtractFromRequest(r, ip),
	})
	if result.Error != nil {
		renderError(w, r, result.Error)
		return
	}

	if trust, ok := result.Tokens[tg.TRUSTED_DEVICE_TOKEN_NAME]; ok {
		if err := h.jwtService.SetTrustedDeviceCookie(w, trust.Token, trust.Expiry); err != nil {
			slog.Error("Failed to set trusted device cookie", "err", err)
		}
	}

	h.renderLoginSuccess(w, r, result)
}

// RegisterRequest is the request body for creating a credential.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is the response body for a created credential.
type RegisterResponse struct {
	Status   string `json:"status"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	cred, err := h.loginService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RegisterResponse{
		Status:   "success",
		UserID:   cred.UserID.String(),
		Username: cred.Username,
		Email:    cred.Email,
	})
}

// ResetPasswordRequest is the request body for changing a password.
type ResetPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ResetPassword handles POST /auth/reset-password. A successful reset
// bumps the credential's token_version, so every outstanding access
// token stops validating and the caller must sign in again.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidCredentials, "authentication required"))
		return
	}

	var req ResetPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	err := h.loginService.ResetPassword(r.Context(), authUser.UserUUID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		renderError(w, r, err)
		return
	}

	h.auditSink.Emit(r.Context(), audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventPasswordReset,
		UserID:    authUser.UserID,
		IP:        ratelimit.ClientIP(r),
		Success:   true,
	})

	if err := h.jwtService.ClearCookie(w, tg.ACCESS_TOKEN_NAME); err != nil {
		slog.Error("Failed to clear access token cookie", "err", err)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":  "success",
		"message": "Password updated, please sign in again",
	})
}

func (h *AuthHandler) renderLoginSuccess(w http.ResponseWriter, r *http.Request, result loginflow.Result) {
	access := result.Tokens[tg.ACCESS_TOKEN_NAME]
	if err := h.jwtService.SetCookie(w, tg.ACCESS_TOKEN_NAME, access.Token, access.Expiry); err != nil {
		slog.Error("Failed to set access token cookie", "err", err)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SigninResponse{
		Status:      "success",
		AccessToken: access.Token,
		ExpiresAt:   access.Expiry.Format(time.RFC3339),
	})
}

func trustedDeviceTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(tg.TRUSTED_DEVICE_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func tokenFromBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	autherr.RenderError(w, r, err)
}
