package service

import "errors"

// Error categories checked with errors.Is at the transport boundaries.
var (
	ErrValidation = errors.New("missing required field")
	ErrNotFound   = errors.New("device not found")
	ErrDenied     = errors.New("permission denied")
)
