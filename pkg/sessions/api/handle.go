package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/spendlyzer/auth/pkg/client"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/sessions"
)

// Handler handles HTTP requests for session management.
type Handler struct {
	sessionService *sessions.Service
}

// NewHandler creates a new session handler.
func NewHandler(sessionService *sessions.Service) *Handler {
	return &Handler{sessionService: sessionService}
}

// Routes returns the authenticated session routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListSessions)
	r.Delete("/", h.RevokeAllSessions)
	r.Delete("/{session_id}", h.RevokeSession)
	return r
}

// ListSessions handles GET /sessions. The caller's own session is marked
// by matching its token's JTI.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	list, err := h.sessionService.ListActiveSessionSummaries(r.Context(), authUser.UserUUID, authUser.JTI)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, list)
}

// RevokeSession handles DELETE /sessions/{session_id}.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid session id"))
		return
	}

	if err := h.sessionService.RevokeSession(r.Context(), authUser.UserUUID, sessionID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			err = autherr.New(autherr.ErrCodeNotFound, "session not found")
		}
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":  "success",
		"message": "Session revoked",
	})
}

// RevokeAllResponse is the response body for a bulk revocation.
type RevokeAllResponse struct {
	Status  string `json:"status"`
	Revoked int    `json:"revoked"`
}

// RevokeAllSessions handles DELETE /sessions. The caller's current
// session stays alive.
func (h *Handler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	revoked, err := h.sessionService.RevokeAllSessions(r.Context(), authUser.UserUUID, authUser.JTI)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RevokeAllResponse{
		Status:  "success",
		Revoked: revoked,
	})
}

func renderUnauthenticated(w http.ResponseWriter, r *http.Request) {
	autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidCredentials, "authentication required"))
}
