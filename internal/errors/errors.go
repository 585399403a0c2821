package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Loam error code.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION"      // 400
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// LoamError represents a structured error with code, status, and details.
type LoamError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LoamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation creates a 400 error for structurally invalid input
// (empty identity, non-finite magnitude).
func NewValidation(msg string) *LoamError {
	return &LoamError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LoamError {
	return &LoamError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing identity.
func NewNotFound(identity string) *LoamError {
	return &LoamError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("profile not found: %s", identity),
		Details: map[string]any{"identity": identity},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error is kept in Details for logging.
func NewInternal(err error) *LoamError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &LoamError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) a LoamError with the given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LoamError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}
