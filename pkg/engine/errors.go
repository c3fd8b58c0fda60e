package engine

import (
	"errors"
	"fmt"

	"github.com/tabulark/tabulark/pkg/policy"
)

// ErrorClass classifies an attempt failure for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassValidation indicates the code was rejected before
	// execution. Retrying the same code unmodified will never succeed;
	// the caller must regenerate or rephrase.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassRuntime indicates a fault raised while the code ran.
	// Examples: missing column, type mismatch, division fault. May be
	// resolved by regenerating against better schema context.
	ErrorClassRuntime ErrorClass = "runtime"

	// ErrorClassTimeout indicates the execution budget was exhausted.
	// May succeed with a simpler query or a larger budget.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassShape indicates the code ran but produced a value the
	// platform cannot represent.
	ErrorClassShape ErrorClass = "shape"

	// ErrorClassChain indicates a chained batch was aborted because an
	// intermediate result was not a table.
	ErrorClassChain ErrorClass = "chain"

	// ErrorClassInternal indicates a fault in the engine itself, not in
	// the submitted code.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError is a classified attempt failure with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Violations carries the rejection reasons for validation errors.
	Violations []policy.Violation `json:"violations,omitempty"`

	// Step is the batch step index the error occurred at, when relevant.
	Step int `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithStep adds the batch step index to an error.
func (e *EngineError) WithStep(index int) *EngineError {
	e.Step = index
	return e
}

// NewValidationError creates a validation rejection carrying its
// violations.
func NewValidationError(violations []policy.Violation) *EngineError {
	msg := "code rejected by validation"
	if len(violations) > 0 {
		msg = violations[0].String()
	}
	return &EngineError{
		Class:      ErrorClassValidation,
		Message:    msg,
		Violations: violations,
	}
}

// NewRuntimeError creates a runtime failure error.
func NewRuntimeError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassRuntime, Message: message, Err: err}
}

// NewTimeoutError creates a budget exhaustion error.
func NewTimeoutError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewShapeError creates an unsupported result shape error.
func NewShapeError(message string) *EngineError {
	return &EngineError{Class: ErrorClassShape, Message: message}
}

// NewChainError creates a chain abort error.
func NewChainError(message string) *EngineError {
	return &EngineError{Class: ErrorClassChain, Message: message}
}

// NewInternalError creates an internal engine fault.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInternal, Message: message, Err: err}
}

func classOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsValidation returns true if the error is a validation rejection.
func IsValidation(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassValidation
}

// IsRuntime returns true if the error is a runtime failure.
func IsRuntime(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassRuntime
}

// IsTimeout returns true if the error is a budget exhaustion.
func IsTimeout(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassTimeout
}

// IsChainAbort returns true if the error is a chain abort.
func IsChainAbort(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassChain
}

// IsRetryable returns true if a regenerated attempt may succeed.
// Runtime failures and timeouts are retryable; validation rejections of
// the same code are not.
func IsRetryable(err error) bool {
	c, ok := classOf(err)
	return ok && (c == ErrorClassRuntime || c == ErrorClassTimeout)
}
