package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when an insert violates the unique
// email constraint. The constraint, not any pre-check, is the
// authoritative duplicate detection under concurrent creations.
var ErrDuplicateEmail = errors.New("email already registered")
