package store

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested panel or run does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for an empty or path-unsafe name.
	ErrInvalidInput = errors.New("invalid input")
)
