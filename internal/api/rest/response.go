package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainErrors "github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	envelope := ResponseEnvelope{
		Success: status < 400,
		Data:    data,
		Meta: ResponseMeta{
			RequestID: requestIDFrom(r),
			Timestamp: time.Now().UTC(),
		},
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP responses. Unknown errors become
// opaque 500s so internals never leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := &ErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	}

	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.StatusCode
		resp.Code = appErr.Code
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	envelope := ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta: ResponseMeta{
			RequestID: requestIDFrom(r),
			Timestamp: time.Now().UTC(),
		},
	}
	if encErr := json.NewEncoder(w).Encode(envelope); encErr != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response", "error", encErr)
	}
}
