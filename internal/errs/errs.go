// Package errs holds the error kinds shared by every domain package.
//
// Domain sentinels wrap exactly one kind so callers can branch with
// errors.Is without importing the domain that produced the error.
package errs

import "errors"

var (
	// ErrValidation rejects a request before anything is written.
	ErrValidation = errors.New("validation_error")
	// ErrNotFound reports a missing payment, tenant or invoice set.
	ErrNotFound = errors.New("not_found")
	// ErrDuplicate reports an idempotent replay that was skipped.
	ErrDuplicate = errors.New("duplicate")
)

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicate reports whether err is an idempotent replay.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
