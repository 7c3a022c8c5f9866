package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"geotech-lab-api/internal/middleware"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

var exposeInternalErrors atomic.Bool

// ExposeInternalErrors puts the raw cause of unclassified errors into the
// response details. Only enabled in development.
func ExposeInternalErrors(enabled bool) {
	exposeInternalErrors.Store(enabled)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
		Meta:       meta,
		Timestamp:  time.Now().UTC(),
		Path:       r.URL.Path,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "unexpected server error",
	}

	if apiErr, ok := apierror.As(err); ok {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		if apiErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(apierror.RetrySeconds(apiErr.RetryAfter), 10))
		}
	} else if errors.Is(err, model.ErrUserNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "user not found"
	} else if errors.Is(err, model.ErrSessionNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "session not found"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "authentication required"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "insufficient permissions"
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "invalid input"
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error",
			"error", err.Error(),
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
		if exposeInternalErrors.Load() {
			body.Details = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success:    false,
		StatusCode: status,
		Message:    body.Message,
		Error:      body,
		Timestamp:  time.Now().UTC(),
		Path:       r.URL.Path,
	})
}
