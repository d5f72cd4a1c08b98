package consent

import (
	"errors"
)

// ErrorKind classifies workflow failures so the API layer can pick a status
// code and a user-facing message without string matching.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"
	KindForbidden   ErrorKind = "forbidden"
	KindValidation  ErrorKind = "validation"
	KindConflict    ErrorKind = "conflict"
	KindExpired     ErrorKind = "expired"
	KindLocked      ErrorKind = "locked"
	KindInvalidCode ErrorKind = "invalid_code"
	KindInternal    ErrorKind = "internal"
)

// Error is the structured failure returned by every workflow operation.
type Error struct {
	Kind    ErrorKind
	Message string
	// AttemptsRemaining is set on invalid-code failures so the caller can
	// tell the user how many tries are left.
	AttemptsRemaining *int
	cause             error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err is a workflow error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == kind
	}
	return false
}

// AsError extracts the workflow error from err, if any.
func AsError(err error) (*Error, bool) {
	var we *Error
	ok := errors.As(err, &we)
	return we, ok
}

func notFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func forbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func conflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func expiredError(message string) *Error {
	return &Error{Kind: KindExpired, Message: message}
}

func lockedError(message string) *Error {
	return &Error{Kind: KindLocked, Message: message}
}

func invalidCodeError(message string, attemptsRemaining int) *Error {
	return &Error{Kind: KindInvalidCode, Message: message, AttemptsRemaining: &attemptsRemaining}
}

func internalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}
