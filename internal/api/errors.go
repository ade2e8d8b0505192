package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/npezzotti/go-messenger/internal/server"
)

type ApiError struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"error"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int, msg string, err error) *ApiError {
	if msg == "" {
		msg = lower(http.StatusText(code))
	}

	return &ApiError{
		StatusCode: code,
		Message:    msg,
		Err:        err,
	}
}

func NewBadRequestError(msg string) *ApiError {
	return newApiError(http.StatusBadRequest, msg, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, "", err)
}

// errorFromApp maps errors returned by the chat server and blob store to
// an HTTP error.
func errorFromApp(err error) *ApiError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			return newApiError(http.StatusBadRequest, appErr.Message, err)
		case errors.Is(err, apperror.ErrNotFound):
			return newApiError(http.StatusNotFound, appErr.Message, err)
		case errors.Is(err, apperror.ErrAlreadyExists):
			return newApiError(http.StatusConflict, appErr.Message, err)
		case errors.Is(err, apperror.ErrUploadRejected) && appErr.Field == "size":
			return newApiError(http.StatusRequestEntityTooLarge, appErr.Message, err)
		case errors.Is(err, apperror.ErrUploadRejected):
			return newApiError(http.StatusUnsupportedMediaType, appErr.Message, err)
		}
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return newApiError(http.StatusRequestEntityTooLarge, "", err)
	case errors.Is(err, server.ErrServerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return newApiError(http.StatusServiceUnavailable, "", err)
	}

	return NewInternalServerError(err)
}
