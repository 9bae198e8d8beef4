package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrTransport    = errors.New("transport error")
	ErrParse        = errors.New("parse error")
	ErrShape        = errors.New("unrecognized response shape")
)

// Error codes carried by AppError.Code.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeTransport  = "TRANSPORT_ERROR"
	CodeParse      = "PARSE_ERROR"
	CodeShape      = "SHAPE_ERROR"
	CodeState      = "STATE_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeBatch      = "BATCH_ERROR"
	CodeTemplate   = "TEMPLATE_ERROR"
	CodeSource     = "SOURCE_ERROR"
	CodePersisting = "PERSIST_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError is a configuration problem rejected before any job or attempt exists.
func ConfigError(format string, args ...any) *AppError {
	return NewAppError(CodeConfig, fmt.Sprintf(format, args...), ErrInvalidInput)
}

// ErrorCode returns the AppError code found in err's chain, or "" when there is none.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
