package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/rag"
	"github.com/taurusduan/ragflow-plus/internal/service"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorStatus maps service errors to HTTP status codes and client messages.
func errorStatus(err error) (int, string) {
	var validationErr *service.ValidationError
	var missingErr *rag.MissingParameterError
	var lookupErr *rag.LookupError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error())
	case errors.As(err, &missingErr):
		return http.StatusBadRequest, missingErr.Error()
	case errors.As(err, &lookupErr):
		return http.StatusInternalServerError, lookupErr.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, service.ErrExternalService):
		return http.StatusBadGateway, "External service error"
	default:
		return http.StatusInternalServerError, ""
	}
}

// handleServiceError writes the response matching a service error.
func handleServiceError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "service error", "error", err)

	status, msg := errorStatus(err)
	if msg == "" {
		msg = defaultMsg
	}
	writeError(w, status, msg)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
