// Package httpx provides HTTP response utilities following RFC7807
// problem details, plus the sentinel error taxonomy shared by every
// domain service.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Services return these (wrapped
// with context) and handlers map them through RespondError.
var (
	// ErrValidation covers malformed input shape.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized covers requests without a requestor identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden covers authorization-guard rejections.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound covers missing entities.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate covers unique constraint conflicts.
	ErrDuplicate = errors.New("duplicate entry")
)

// StatusOf maps a domain error to its HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to RFC7807 responses. Internal errors
// are not echoed back to the client.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, http.StatusText(status), detail)
}
