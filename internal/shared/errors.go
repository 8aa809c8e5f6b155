package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrVersionConflict indicates a conditional write lost against a
	// concurrent writer from another process.
	ErrVersionConflict = errors.New("version conflict")
)
