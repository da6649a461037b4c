package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/spendlyzer/auth/pkg/client"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/twofa"
)

// Handler handles HTTP requests for second-factor management.
type Handler struct {
	twoFaService *twofa.TwoFaService
}

// NewHandler creates a new two-factor handler.
func NewHandler(twoFaService *twofa.TwoFaService) *Handler {
	return &Handler{twoFaService: twoFaService}
}

// Routes returns the authenticated two-factor management routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStatus)
	r.Post("/enable", h.Enable)
	r.Post("/send-setup-code", h.SendSetupCode)
	r.Post("/resend-code", h.SendSetupCode)
	r.Post("/verify", h.Verify)
	r.Post("/disable", h.Disable)
	r.Post("/backup-codes/regenerate", h.RegenerateBackupCodes)
	return r
}

// EnableRequest is the request body for starting second-factor setup.
type EnableRequest struct {
	Method  string `json:"method"`
	Contact string `json:"contact,omitempty"` // phone number for sms, email address for email
}

// Enable handles POST /users/2fa/enable.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	var req EnableRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	method, err := twofa.ParseMethod(req.Method)
	if err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, err.Error()))
		return
	}

	result, err := h.twoFaService.Setup(r.Context(), authUser.UserUUID, method, req.Contact)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// SendSetupCode handles POST /users/2fa/send-setup-code and
// POST /users/2fa/resend-code. Both replace any outstanding setup code.
func (h *Handler) SendSetupCode(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	if err := h.twoFaService.ResendSetupCode(r.Context(), authUser.UserUUID); err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":  "success",
		"message": "Verification code sent",
	})
}

// CodeRequest is the request body for operations proven by a code.
type CodeRequest struct {
	Code string `json:"code"`
}

// Verify handles POST /users/2fa/verify, finishing setup.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	var req CodeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Code == "" {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "code is required"))
		return
	}

	result, err := h.twoFaService.ConfirmSetup(r.Context(), authUser.UserUUID, req.Code)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// Disable handles POST /users/2fa/disable.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	var req CodeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Code == "" {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "code is required"))
		return
	}

	if err := h.twoFaService.Disable(r.Context(), authUser.UserUUID, req.Code); err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":  "success",
		"message": "Two-factor authentication disabled",
	})
}

// RegenerateBackupCodesResponse carries the fresh plaintext backup codes,
// shown exactly once.
type RegenerateBackupCodesResponse struct {
	Status      string   `json:"status"`
	BackupCodes []string `json:"backup_codes"`
}

// RegenerateBackupCodes handles POST /users/2fa/backup-codes/regenerate.
func (h *Handler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	var req CodeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Code == "" {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "code is required"))
		return
	}

	codes, err := h.twoFaService.RegenerateBackupCodes(r.Context(), authUser.UserUUID, req.Code)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RegenerateBackupCodesResponse{
		Status:      "success",
		BackupCodes: codes,
	})
}

// GetStatus handles GET /users/2fa.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	status, err := h.twoFaService.Status(r.Context(), authUser.UserUUID)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

func renderUnauthenticated(w http.ResponseWriter, r *http.Request) {
	autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidCredentials, "authentication required"))
}
