package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a failed token check.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
