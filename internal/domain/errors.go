package domain

import "errors"

// Core error taxonomy. Callers classify with the Is* helpers rather than
// comparing sentinels directly, since store-layer errors are wrapped.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrTransientBackend = errors.New("backend temporarily unavailable")
)

// IsNotFound reports whether err (or a wrapped cause) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err (or a wrapped cause) is ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict reports whether err (or a wrapped cause) is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient reports whether err (or a wrapped cause) is ErrTransientBackend.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientBackend)
}
