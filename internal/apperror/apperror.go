package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUploadRejected = errors.New("upload rejected")
)

type AppError struct {
	Err     error  // sentinel the error belongs to
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func AlreadyExists(resource, id string) *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: fmt.Sprintf("%s %q already exists", resource, id),
	}
}

// UploadRejected is returned by blob stores for disallowed or oversized files.
func UploadRejected(message string) *AppError {
	return &AppError{
		Err:     ErrUploadRejected,
		Message: message,
	}
}

// UploadTooLarge is an UploadRejected error for files over the size limit.
func UploadTooLarge(message string) *AppError {
	return &AppError{
		Err:     ErrUploadRejected,
		Message: message,
		Field:   "size",
	}
}
