package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: apiError{Code: code, Message: message}})
}

// mapRedemptionError returns the HTTP status, error code, customer message
// and metrics outcome for err.
func mapRedemptionError(err error) (int, string, string, string) {
	switch {
	case errors.Is(err, common.ErrMalformedRequest):
		return http.StatusBadRequest, "MALFORMED_REQUEST", "Missing token or filename parameter", metrics.OutcomeMalformed
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusForbidden, "INVALID_TOKEN", "Invalid or expired download token", metrics.OutcomeInvalid
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusGone, "TOKEN_EXPIRED", "Download link has expired. Please contact support for assistance.", metrics.OutcomeExpired
	case errors.Is(err, common.ErrLimitExceeded):
		return http.StatusTooManyRequests, "LIMIT_EXCEEDED", "Download limit exceeded. Please contact support for assistance.", metrics.OutcomeLimitExceeded
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "Too many download attempts. Please try again shortly.", metrics.OutcomeRateLimited
	case errors.Is(err, common.ErrFileUnavailable):
		return http.StatusNotFound, "FILE_NOT_FOUND", "File not found or download failed", metrics.OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Download timed out. Please try again.", metrics.OutcomeTimeout
	default:
		return http.StatusInternalServerError, "DOWNLOAD_ERROR", "Internal server error occurred during download", metrics.OutcomeError
	}
}
