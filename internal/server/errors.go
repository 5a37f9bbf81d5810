package server

import "errors"

// Errors surfaced to callers. Relay failures are never returned; they are
// recorded as warn events instead.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidRange = errors.New("invalid range")
)
