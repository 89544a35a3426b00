package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged server-side with its technical detail and request
// ID, then returned to the client as a JSON ErrorResponse carrying the
// catalogue message from core.MapError. The HTTP status is derived from the
// error chain by statusFor.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/factflow/internal/core"
	"github.com/JonMunkholm/factflow/internal/jobs"
	"github.com/JonMunkholm/factflow/internal/model"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Action   string   `json:"action,omitempty"`
	Code     string   `json:"code"`
	Problems []string `json:"problems,omitempty"`
}

// statusFor maps an error chain onto an HTTP status.
func statusFor(err error) int {
	var mappingErr *model.MappingError
	var structuralErr *model.StructuralError

	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &mappingErr),
		errors.As(err, &structuralErr),
		errors.Is(err, model.ErrMalformedFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail responds with the status statusFor derives from err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, statusFor(err))
}

// respondError logs the technical error and writes the user-facing JSON
// error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
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

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var mappingErr *model.MappingError
	if errors.As(err, &mappingErr) {
		resp.Problems = mappingErr.Problems
	}
	writeJSONStatus(w, statusCode, resp)
}
