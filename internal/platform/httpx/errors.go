// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Transport-level sentinels not covered by the shared kinds.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("malformed request body")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var fields shared.FieldErrors
	switch {
	case errors.As(err, &fields):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Type:   "validation",
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
			Errors: fields,
		})
	case errors.Is(err, ErrBadRequest), errors.Is(err, shared.ErrValidation):
		TypedProblem(w, http.StatusBadRequest, "validation", "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		TypedProblem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		TypedProblem(w, http.StatusNotFound, "reference-not-found", "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		TypedProblem(w, http.StatusConflict, "invalid-state-transition", "Invalid State Transition", err.Error())
	case errors.Is(err, shared.ErrPrecondition):
		TypedProblem(w, http.StatusUnprocessableEntity, "precondition-failed", "Precondition Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		w.Header().Set("Retry-After", "1")
		TypedProblem(w, http.StatusConflict, "conflict", "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
