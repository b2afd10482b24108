package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for retry and HTTP-mapping decisions.
type ErrorClass string

const (
	// ErrorClassNotFound indicates a lookup miss. Surfaced to callers as a
	// 404 equivalent.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassDuplicate indicates more than one row matched where at most
	// one is allowed. A data-integrity violation, never expected in steady
	// state.
	ErrorClassDuplicate ErrorClass = "duplicate"

	// ErrorClassVersionExists indicates an attempt to register an entity
	// version that is already present. Surfaced as a 409 equivalent.
	ErrorClassVersionExists ErrorClass = "version_exists"

	// ErrorClassConflict indicates an optimistic-concurrency token
	// mismatch. Retried locally up to a bound, then fatal for the step.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassValidation indicates an invalid input payload, rejected
	// before any persistence occurs.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassConfiguration indicates a control-plane misconfiguration:
	// a malformed pipeline referencing an unresolvable target, or an event
	// arriving for an administratively disabled feature. Never swallowed.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassInternal indicates an unexpected failure.
	ErrorClassInternal ErrorClass = "internal"
)

// Error is a classified control-plane error with optional resource and step
// context.
type Error struct {
	Class    ErrorClass `json:"class"`
	Message  string     `json:"message"`
	Resource string     `json:"resource,omitempty"`
	Step     string     `json:"step,omitempty"`
	Err      error      `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s", e.Resource)
		if e.Step != "" {
			msg += fmt.Sprintf(", step=%s", e.Step)
		}
		msg += ")"
	} else if e.Step != "" {
		msg += fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by class so sentinel comparisons with errors.Is work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithResource adds resource context to the error.
func (e *Error) WithResource(resourceID string) *Error {
	e.Resource = resourceID
	return e
}

// WithStep adds step context to the error.
func (e *Error) WithStep(stepID string) *Error {
	e.Step = stepID
	return e
}

// NewNotFoundError creates a lookup-miss error.
func NewNotFoundError(message string, err error) *Error {
	return &Error{Class: ErrorClassNotFound, Message: message, Err: err}
}

// NewDuplicateError creates a data-integrity error for multiple matches.
func NewDuplicateError(message string, err error) *Error {
	return &Error{Class: ErrorClassDuplicate, Message: message, Err: err}
}

// NewVersionExistsError creates a version-conflict error.
func NewVersionExistsError(message string, err error) *Error {
	return &Error{Class: ErrorClassVersionExists, Message: message, Err: err}
}

// NewConflictError creates an optimistic-concurrency conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewValidationError creates an invalid-input error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewConfigurationError creates a control-plane misconfiguration error.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewInternalError creates an unexpected-failure error.
func NewInternalError(message string, err error) *Error {
	return &Error{Class: ErrorClassInternal, Message: message, Err: err}
}

func isClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsNotFound reports whether the error is a lookup miss.
func IsNotFound(err error) bool { return isClass(err, ErrorClassNotFound) }

// IsDuplicate reports whether the error is a multiple-match integrity violation.
func IsDuplicate(err error) bool { return isClass(err, ErrorClassDuplicate) }

// IsVersionExists reports whether the error is a version conflict.
func IsVersionExists(err error) bool { return isClass(err, ErrorClassVersionExists) }

// IsConflict reports whether the error is an optimistic-concurrency conflict.
func IsConflict(err error) bool { return isClass(err, ErrorClassConflict) }

// IsValidation reports whether the error is an invalid-input error.
func IsValidation(err error) bool { return isClass(err, ErrorClassValidation) }

// IsConfiguration reports whether the error is a misconfiguration error.
func IsConfiguration(err error) bool { return isClass(err, ErrorClassConfiguration) }
