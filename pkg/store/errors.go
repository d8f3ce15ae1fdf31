package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested campaign or token does not exist.
	ErrNotFound = errors.New("not found")
)
