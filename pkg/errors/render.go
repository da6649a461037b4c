package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// ErrorResponse is the wire shape of every error body.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RenderError writes err as a JSON error response with the HTTP status
// implied by its code. Errors outside the taxonomy render as internal
// errors without leaking their message.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	var typed *Error
	if !errors.As(err, &typed) {
		typed = Internal("internal error")
	}

	if retryAfter, ok := typed.Details["retry_after"].(string); ok && typed.Code == ErrCodeRateLimitExceeded {
		w.Header().Set("Retry-After", retryAfter)
	}

	render.Status(r, typed.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Code:    string(typed.Code),
		Message: typed.Message,
		Details: typed.Details,
	})
}
