package db

import "errors"

// The two error kinds the store distinguishes for its callers. Anything else
// returned by a store operation is an I/O failure wrapping the underlying
// filesystem error.
var (
	// ErrNotFound signals that an identifier (or a physical file, for the
	// document store) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation signals a malformed or empty payload on a replace/save
	// operation, a disallowed upload type, or an oversize upload.
	ErrValidation = errors.New("validation failed")
)
