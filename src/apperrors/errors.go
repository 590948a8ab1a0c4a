// Package apperrors holds the error taxonomy surfaced to callers of the engine.
package apperrors

import "errors"

var (
	// ErrNotFound covers unknown exception ids, users and locations.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is returned for malformed or incomplete requests.
	ErrValidation = errors.New("validation failed")
	// ErrPartialEffect means the action was logged but its side effect failed.
	ErrPartialEffect = errors.New("action logged but effect failed")
)
