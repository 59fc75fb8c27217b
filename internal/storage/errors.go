package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLeaseHeld is returned when another run holds the requested lease.
	ErrLeaseHeld = errors.New("lease held by another run")
)
