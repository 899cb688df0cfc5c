package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/af-corp/muse-gateway/internal/upstream"
)

// ErrorBody is the envelope every non-2xx JSON response carries.
type ErrorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, requestID string, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{
		Error:     message,
		ErrorCode: code,
		RequestID: requestID,
	})
}

// mapError classifies an upstream error into an HTTP status, stable
// error_code, and client-safe message. Unclassified errors become a plain
// 500 without leaking internals.
func mapError(err error) (int, string, string) {
	var (
		cfgErr *upstream.ConfigError
		valErr *upstream.ValidationError
		authEr *upstream.AuthError
		qErr   *upstream.QuotaError
		rlErr  *upstream.RateLimitError
		netErr *upstream.NetworkError
		toErr  *upstream.TimeoutError
		upErr  *upstream.UpstreamError
		nfErr  *upstream.NotFoundError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "invalid_request", valErr.Error()
	case errors.As(err, &nfErr):
		return http.StatusNotFound, "task_not_found", nfErr.Error()
	case errors.As(err, &authEr):
		return http.StatusBadGateway, "upstream_auth", "upstream rejected the gateway's credentials"
	case errors.As(err, &qErr):
		return http.StatusBadGateway, "upstream_quota", "upstream account quota exhausted"
	case errors.As(err, &rlErr):
		return http.StatusTooManyRequests, "upstream_rate_limited", "upstream is rate limiting, retry later"
	case errors.As(err, &toErr):
		return http.StatusGatewayTimeout, "upstream_timeout", toErr.Error()
	case errors.As(err, &netErr):
		return http.StatusBadGateway, "upstream_unreachable", "could not reach upstream"
	case errors.As(err, &upErr):
		return http.StatusBadGateway, "upstream_error", upErr.Error()
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, "config_error", "gateway misconfigured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 499, "client_closed_request", "request canceled"
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

// StatusForError returns the HTTP status WriteForError would write for err.
func StatusForError(err error) int {
	status, _, _ := mapError(err)
	return status
}

// WriteForError maps a classified upstream error onto an HTTP status and
// stable error_code, then writes the envelope.
func WriteForError(w http.ResponseWriter, requestID string, err error) {
	status, code, message := mapError(err)
	WriteError(w, requestID, status, code, message)
}
