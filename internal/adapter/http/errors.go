package http

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError is the JSON error envelope of the processing API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// Render implements render.Renderer.
func (e *APIError) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, e *APIError) {
	if e.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error_code", e.ErrorCode, "error", e.Message)
	}
	_ = render.Render(w, r, e)
}
