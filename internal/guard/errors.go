package guard

import (
	"errors"
	"fmt"
)

// GuardError describes a guard predicate or registration failure.
type GuardError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// GuardID identifies the affected guard.
	GuardID string

	// Err is the underlying error, if any.
	Err error
}

// ErrorCode categorizes guard errors.
type ErrorCode string

const (
	// ErrCodePredicateFailed indicates a predicate returned an error.
	ErrCodePredicateFailed ErrorCode = "PREDICATE_FAILED"

	// ErrCodePredicatePanicked indicates a predicate panicked.
	ErrCodePredicatePanicked ErrorCode = "PREDICATE_PANICKED"

	// ErrCodePredicateTimeout indicates a predicate exceeded its deadline.
	ErrCodePredicateTimeout ErrorCode = "PREDICATE_TIMEOUT"

	// ErrCodeInvalidRegistration indicates an empty id or nil predicate.
	ErrCodeInvalidRegistration ErrorCode = "INVALID_REGISTRATION"
)

// Error implements the error interface.
func (e *GuardError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.GuardID != "" {
		msg = fmt.Sprintf("%s (guard=%s)", msg, e.GuardID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *GuardError) Unwrap() error {
	return e.Err
}

// IsPredicateError reports whether err is a predicate failure of any kind.
// Uses errors.As to handle wrapped errors.
func IsPredicateError(err error) bool {
	var ge *GuardError
	if !errors.As(err, &ge) {
		return false
	}
	switch ge.Code {
	case ErrCodePredicateFailed, ErrCodePredicatePanicked, ErrCodePredicateTimeout:
		return true
	}
	return false
}

func invalidRegistration(id, msg string) *GuardError {
	return &GuardError{Code: ErrCodeInvalidRegistration, Message: msg, GuardID: id}
}
