package common

import "errors"

// Callers should match these with errors.Is.
var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken covers every token failure: bad signature, wrong
	// secret, malformed input and expiry are not told apart.
	ErrInvalidToken = errors.New("invalid or expired token")
)
