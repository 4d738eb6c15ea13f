package sites

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every public operation surfaces one of these sentinels,
// wrapped with operation detail; callers match with errors.Is or the Is*
// helpers below.
var (
	// ErrNotFound indicates an absent site, membership or authority.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate site short name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates a malformed input: name too long,
	// unknown role, missing required property.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied indicates the caller failed an authorization check.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvariantViolation indicates an operation that would break a model
	// invariant, such as removing the last manager.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConfiguration indicates broken deployment configuration, such as a
	// missing public authority.
	ErrConfiguration = errors.New("configuration error")
)

// IsNotFound reports whether err is an ErrNotFound failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err is an ErrAlreadyExists failure.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsPermissionDenied reports whether err is an ErrPermissionDenied failure.
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// IsInvariantViolation reports whether err is an ErrInvariantViolation failure.
func IsInvariantViolation(err error) bool { return errors.Is(err, ErrInvariantViolation) }

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

func deniedf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrPermissionDenied)...)
}
