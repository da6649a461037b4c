package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/spendlyzer/auth/pkg/client"
	"github.com/spendlyzer/auth/pkg/device"
	autherr "github.com/spendlyzer/auth/pkg/errors"
	"github.com/spendlyzer/auth/pkg/ratelimit"
	tg "github.com/spendlyzer/auth/pkg/tokengenerator"
	"github.com/spendlyzer/auth/pkg/trusteddevice"
)

// Handler handles HTTP requests for trusted device management.
type Handler struct {
	deviceService *trusteddevice.Service
	jwtService    *tg.JwtService
}

// NewHandler creates a new trusted device handler.
func NewHandler(deviceService *trusteddevice.Service, jwtService *tg.JwtService) *Handler {
	return &Handler{
		deviceService: deviceService,
		jwtService:    jwtService,
	}
}

// Routes returns the authenticated trusted device routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDevices)
	r.Get("/check", h.CheckDevice)
	r.Delete("/all", h.RevokeAll)
	r.Delete("/{device_id}", h.RevokeDevice)
	return r
}

// DeviceView is the client-facing shape of a trusted device.
type DeviceView struct {
	ID         string `json:"id"`
	DeviceName string `json:"device_name"`
	Location   string `json:"location,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
	ExpiresAt  string `json:"expires_at"`
}

// ListDevicesResponse is the response body for listing trusted devices.
type ListDevicesResponse struct {
	Status  string       `json:"status"`
	Devices []DeviceView `json:"devices"`
	Total   int          `json:"total"`
}

// ListDevices handles GET /trusted-devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	devices, err := h.deviceService.List(r.Context(), authUser.UserUUID)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, DeviceView{
			ID:         d.ID.String(),
			DeviceName: d.DeviceName,
			Location:   d.Location,
			IPAddress:  d.IPAddress,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
			LastUsedAt: d.LastUsedAt.Format(time.RFC3339),
			ExpiresAt:  d.ExpiresAt.Format(time.RFC3339),
		})
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListDevicesResponse{
		Status:  "success",
		Devices: views,
		Total:   len(views),
	})
}

// CheckDeviceResponse is the response body for a trust check.
type CheckDeviceResponse struct {
	Status     string `json:"status"`
	Trusted    bool   `json:"trusted"`
	DeviceName string `json:"device_name,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// CheckDevice handles GET /trusted-devices/check. It verifies the trust
// cookie against the caller's current fingerprint and location, and
// clears the cookie when the check fails.
func (h *Handler) CheckDevice(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	token := trustedDeviceTokenFromCookie(r)
	ip := ratelimit.ClientIP(r)

	dev, err := h.deviceService.Verify(r.Context(), authUser.UserUUID, token, device.ExtractFromRequest(r, ip))
	if err != nil {
		if clearErr := h.jwtService.ClearTrustedDeviceCookie(w); clearErr != nil {
			slog.Error("Failed to clear trusted device cookie", "err", clearErr)
		}
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, CheckDeviceResponse{
		Status:     "success",
		Trusted:    true,
		DeviceName: dev.DeviceName,
		ExpiresAt:  dev.ExpiresAt.Format(time.RFC3339),
	})
}

// RevokeDevice handles DELETE /trusted-devices/{device_id}.
func (h *Handler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	deviceID, err := uuid.Parse(chi.URLParam(r, "device_id"))
	if err != nil {
		autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidInput, "invalid device id"))
		return
	}

	if err := h.deviceService.Revoke(r.Context(), authUser.UserUUID, deviceID); err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":  "success",
		"message": "Device trust revoked",
	})
}

// RevokeAllResponse is the response body for a bulk revocation.
type RevokeAllResponse struct {
	Status  string `json:"status"`
	Revoked int    `json:"revoked"`
}

// RevokeAll handles DELETE /trusted-devices/all. The caller's own trust
// cookie is cleared along with the server-side records.
func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	authUser := client.GetAuthUser(r.Context())
	if authUser == nil {
		renderUnauthenticated(w, r)
		return
	}

	revoked, err := h.deviceService.RevokeAll(r.Context(), authUser.UserUUID)
	if err != nil {
		autherr.RenderError(w, r, err)
		return
	}

	if err := h.jwtService.ClearTrustedDeviceCookie(w); err != nil {
		slog.Error("Failed to clear trusted device cookie", "err", err)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RevokeAllResponse{
		Status:  "success",
		Revoked: revoked,
	})
}

func trustedDeviceTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(tg.TRUSTED_DEVICE_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func renderUnauthenticated(w http.ResponseWriter, r *http.Request) {
	autherr.RenderError(w, r, autherr.New(autherr.ErrCodeInvalidCredentials, "authentication required"))
}
