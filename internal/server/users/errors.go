package users

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input validation error; the specific
// sentinels below tell which rule failed.
var ErrValidation = errors.New("validation error")

var (
	ErrMissingFields      = validationError("all fields are required")
	ErrPasswordMismatch   = validationError("passwords do not match")
	ErrPasswordTooShort   = validationError("password must be at least 6 characters")
	ErrInvalidMobile      = validationError("mobile number must be 10 digits")
	ErrInvalidEmail       = validationError("invalid email format")
	ErrMissingCredentials = validationError("email and password are required")
	ErrMissingEmail       = validationError("external identity has no email")
)

var (
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrDuplicateMobile = errors.New("mobile number already exists")

	// ErrNoUsersYet means the store has never been written to (or could not
	// be read) at login time. Kept apart from ErrInvalidCredentials so the
	// UI can prompt for registration.
	ErrNoUsersYet = errors.New("no users registered yet")

	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrStorage wraps I/O failures of the backing store.
	ErrStorage = errors.New("user store error")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func storageError(op string, err error) error {
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
