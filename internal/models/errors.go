package models

import (
	"errors"
	"fmt"
)

// Error codes for the failure classes the system distinguishes.
const (
	CodeNetworkFault    = "NETWORK_FAULT"
	CodeStorageFault    = "STORAGE_FAULT"
	CodeNotFound        = "NOT_FOUND"
	CodeValidationFault = "VALIDATION_FAULT"
)

// AppError carries a code from the fault taxonomy along with the cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNetworkFault wraps a timeout, refused connection or non-2xx reply.
func NewNetworkFault(op string, err error) *AppError {
	return &AppError{Code: CodeNetworkFault, Message: op, Err: err}
}

// NewStorageFault wraps a serialization or backend failure of the Local Store.
func NewStorageFault(op string, err error) *AppError {
	return &AppError{Code: CodeStorageFault, Message: op, Err: err}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidationFault, Message: message}
}

// HasCode reports whether any error in err's chain is an AppError with code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNetworkFault(err error) bool    { return HasCode(err, CodeNetworkFault) }
func IsStorageFault(err error) bool    { return HasCode(err, CodeStorageFault) }
func IsNotFound(err error) bool        { return HasCode(err, CodeNotFound) }
func IsValidationFault(err error) bool { return HasCode(err, CodeValidationFault) }
