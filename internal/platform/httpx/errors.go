package httpx

import (
	"errors"
	"net/http"

	"github.com/hackportal/hackportal-backend/internal/shared"
)

// StatusFor maps the data-access error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrUnsupportedOperation):
		return http.StatusMethodNotAllowed
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, shared.ErrPoolExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := ""
	if shared.IsClientError(err) {
		detail = err.Error()
	}
	Problem(w, status, http.StatusText(status), detail)
}

// RespondResult writes a Success/Failure envelope with the status matching
// its error.
func RespondResult(w http.ResponseWriter, res shared.Result) {
	JSON(w, StatusFor(res.Err()), res)
}
