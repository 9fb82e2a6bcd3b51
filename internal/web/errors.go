package web

// errors.go turns job errors into API responses.
//
// Every error is logged server-side with the request id and returned to
// the client as ErrorResponse JSON, with the user-facing text and code
// taken from core.MapError.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/ecpack/internal/core"
	"github.com/JonMunkholm/ecpack/internal/sheet"
	"github.com/JonMunkholm/ecpack/internal/transform"
	"github.com/go-chi/chi/v5/middleware"
)

// Upload errors. Their messages match core.MapError patterns.
var (
	errNoFile          = errors.New("no file provided")
	errFileTooLarge    = errors.New("file too large")
	errUnsupportedType = errors.New("unsupported file type: only .xlsx workbooks are accepted")
	errRateLimited     = errors.New("rate limit exceeded")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor picks the HTTP status for a job error.
func statusFor(err error) int {
	var (
		formatErr *sheet.FormatError
		mergedErr *sheet.MergedCellError
		joinErr   *transform.JoinInputError
	)

	switch {
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSessionStep):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &joinErr), errors.As(err, &formatErr), errors.As(err, &mergedErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondJobError writes a job failure with the status statusFor picks.
func respondJobError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	respondError(w, r, err, status)
}
