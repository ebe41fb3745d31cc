// Package httputil holds the JSON envelope shared by every handler.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"clinicaudit/pkg/platform/sentinel"
)

const maxBodyBytes = 1 << 20

// Validatable request bodies normalize and check themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps sentinel errors to status codes. Server-side failures
// never echo internal details; client errors carry a description the UI can
// show directly.
func WriteError(w http.ResponseWriter, err error) {
	status, code, desc := classify(err)
	WriteJSON(w, status, errorBody{Error: code, Description: desc})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, sentinel.ErrBadRequest),
		errors.Is(err, sentinel.ErrMalformedFilter),
		errors.Is(err, sentinel.ErrInvalidEvent):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, sentinel.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "invalid credentials or token"
	case errors.Is(err, sentinel.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many failed attempts, try again later"
	case errors.Is(err, sentinel.ErrForbidden):
		return http.StatusForbidden, "forbidden", ""
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, "not_found", ""
	case errors.Is(err, sentinel.ErrDuplicateEvent):
		return http.StatusConflict, "conflict", sentinel.ErrDuplicateEvent.Error()
	case errors.Is(err, sentinel.ErrWriteConflict):
		return http.StatusServiceUnavailable, "write_conflict", "audit store busy, retry"
	case errors.Is(err, sentinel.ErrQueueFull):
		return http.StatusServiceUnavailable, "unavailable", "audit queue full, retry"
	case errors.Is(err, sentinel.ErrExportExists):
		return http.StatusConflict, "export_exists", "export failed: destination file already exists"
	case errors.Is(err, sentinel.ErrExportIO):
		return http.StatusInternalServerError, "export_failed", "export failed: destination not writable"
	case errors.Is(err, sentinel.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable", ""
	}
	return http.StatusInternalServerError, "internal_error", ""
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method
// if it has one. On failure it writes the error response and returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, fmt.Errorf("%w: invalid JSON body", sentinel.ErrBadRequest))
		return nil, false
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "request validation failed",
				"request_id", requestID,
				"error", err,
			)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
