package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrChannelSend
	ErrChannelTimeout
	ErrNoEligibleRecipients
)

// ValidationError names the first offending field of a malformed input.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// NewChannelSend wraps a transport failure on one channel.
func NewChannelSend(channel string, err error) *AppError {
	return &AppError{
		Code:    ErrChannelSend,
		Message: fmt.Sprintf("send failed on channel %s", channel),
		Err:     err,
	}
}

// NewChannelTimeout marks a send that exceeded its deadline; treated
// exactly like an explicit send failure by fallback and retry.
func NewChannelTimeout(channel string, err error) *AppError {
	return &AppError{
		Code:    ErrChannelTimeout,
		Message: fmt.Sprintf("send timed out on channel %s", channel),
		Err:     err,
	}
}

// NewNoEligibleRecipients is a logged no-op condition, never user-visible.
func NewNoEligibleRecipients(notificationType string) *AppError {
	return &AppError{
		Code:    ErrNoEligibleRecipients,
		Message: fmt.Sprintf("no eligible recipients for %s", notificationType),
	}
}
