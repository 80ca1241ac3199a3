package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// Error codes returned in the JSON error body.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeRangeUnsatisfied = "RANGE_NOT_SATISFIABLE"
	CodeUploadAborted    = "UPLOAD_ABORTED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatuses is matched in order; the first entry whose error is in the
// chain decides the response.
var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{common.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeTooLarge},
	{common.ErrInvalidRange, http.StatusRequestedRangeNotSatisfiable, CodeRangeUnsatisfied},
	{common.ErrCorruptObject, http.StatusInternalServerError, CodeInternal},
	{common.ErrStorageUnavailable, http.StatusInternalServerError, CodeInternal},
	{common.ErrUploadAborted, http.StatusBadRequest, CodeUploadAborted},
	{common.ErrorNotFound, http.StatusNotFound, CodeNotFound},
	{common.ErrorUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized, CodeUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized, CodeUnauthorized},
	{common.ErrTokenNotFound, http.StatusUnauthorized, CodeUnauthorized},
	{common.ErrTokenObjectMismatch, http.StatusUnauthorized, CodeUnauthorized},
	{common.ErrTokenConsumed, http.StatusUnauthorized, CodeUnauthorized},
}

// statusFor maps an error from the service layer to an HTTP status and
// error code. Unknown errors are internal.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// WriteError writes a JSON error body with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail writes the error response for err. Internal failures are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		WriteError(w, status, code, http.StatusText(status))
		return
	}
	WriteError(w, status, code, err.Error())
}

// failPublic is fail for public-link routes: every client-side failure is
// reported as not found so a caller cannot probe tokens or objects.
func (h *Handler) failPublic(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusFor(err); status < http.StatusInternalServerError {
		WriteError(w, http.StatusNotFound, CodeNotFound, http.StatusText(http.StatusNotFound))
		return
	}
	h.fail(w, r, err)
}
