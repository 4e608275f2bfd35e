package service

import "errors"

var (
	// ErrNotFound means the referenced task, rule or member does not exist.
	// The failing operation performs no state change.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the input was rejected before any mutation.
	ErrValidation = errors.New("invalid input")
)
