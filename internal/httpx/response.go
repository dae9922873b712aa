package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"relo/internal/apperr"
)

type errorBody struct {
	Success bool      `json:"success"`
	Error   errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response", "error", err)
	}
}

// Error renders err as a JSON error body. Errors that are not AppErrors are
// logged and reported as 500 without leaking their text.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		slog.Default().ErrorContext(r.Context(), "unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
		appErr = apperr.Internal("internal server error", err)
	} else if appErr.Status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	JSON(w, appErr.Status, errorBody{
		Error: errorInfo{Code: appErr.Code, Message: appErr.Message},
	})
}

// QueryInt reads a non-negative integer query parameter, falling back to def
// when absent. Malformed values are a validation error.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(key+" must be a non-negative integer", err)
	}
	return n, nil
}

// QueryBool reads a boolean query parameter, false when absent.
func QueryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Validation(key+" must be a boolean", err)
	}
	return b, nil
}
