package errors

import (
	"errors"
	"fmt"
)

// Settlement kinds for a sign-in attempt. Every failed attempt wraps exactly one of these.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrExchange        = errors.New("credential exchange failed")
	ErrPollTimeout     = errors.New("timed out waiting for session")
	ErrUserCancelled   = errors.New("user cancelled sign-in")
	ErrAttemptInFlight = errors.New("sign-in attempt already in flight")
	ErrVerification    = errors.New("no session after exchange")
	ErrAttemptAborted  = errors.New("sign-in attempt aborted")
)

// Session and credential errors
var (
	ErrAuthSessionMissing = errors.New("auth session missing")
	ErrInvalidSession     = errors.New("invalid session")
	ErrCredentialNotFound = errors.New("no credential in callback")
	ErrInvalidToken       = errors.New("invalid token")
	ErrStoreClosed        = errors.New("session store closed")
)

// General errors
var (
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
)

// New returns an error that formats as the given text
func New(text string) error {
	return errors.New(text)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
