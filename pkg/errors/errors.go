// Package errors defines the typed errors the application and HTTP layers
// exchange. Infrastructure errors are wrapped as Internal; the HTTP layer
// maps each type to a status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorises an AppError.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError carries a type, a client-safe message and an optional cause.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidation(format string, args ...any) error {
	return &AppError{Type: ErrorTypeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) error {
	return &AppError{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...any) error {
	return &AppError{Type: ErrorTypeConflict, Message: fmt.Sprintf(format, args...)}
}

func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Wrap adds context to err. An AppError keeps its type; anything else
// becomes Internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: message + ": " + appErr.Message,
			Err:     appErr.Err,
		}
	}
	return NewInternal(message, err)
}

// TypeOf returns the type of the first AppError in err's chain, or
// Internal when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

func IsValidation(err error) bool { return err != nil && TypeOf(err) == ErrorTypeValidation }
func IsNotFound(err error) bool   { return err != nil && TypeOf(err) == ErrorTypeNotFound }
func IsConflict(err error) bool   { return err != nil && TypeOf(err) == ErrorTypeConflict }
func IsInternal(err error) bool   { return err != nil && TypeOf(err) == ErrorTypeInternal }

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show clients. Internal causes
// are never exposed.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type != ErrorTypeInternal {
		return appErr.Message
	}
	return "internal server error"
}
