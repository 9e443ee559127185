package domain

import "errors"

// Sentinel errors crossing the data-service boundary. Adapters wrap them
// with context; the realtime layer maps them to protocol error codes.
var (
	// ErrForbidden is returned when the accountability does not permit a read.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a single-item read matches nothing the
	// accountability may see.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned by accountability refresh when the identity no
	// longer resolves (revoked token, deleted user).
	ErrExpired = errors.New("accountability expired")

	// ErrInvalidQuery is returned when a query references unknown fields or
	// unsupported operators.
	ErrInvalidQuery = errors.New("invalid query")
)
