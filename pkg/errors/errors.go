// Package errors holds the sentinel errors of the index service, their
// HTTP statuses and their RPC wire codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyContent           = errors.New("collection has no content")
	ErrInvalidDocumentArray   = errors.New("not a valid json array of documents")
	ErrInvalidSearchParameter = errors.New("invalid search parameter")
	ErrInvalidTargetName      = errors.New("invalid target collection name")
	ErrNoIndexAvailable       = errors.New("no index available")
	ErrNotFound               = errors.New("collection not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInternal               = errors.New("internal error")
	ErrTimeout                = errors.New("operation timed out")
)

// AppError pins an HTTP status and a client-facing message to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// BodyError classifies a failed request-body read: 413 when the body
// exceeded an http.MaxBytesReader limit, 400 otherwise.
func BodyError(err error) *AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return Newf(ErrInvalidInput, http.StatusRequestEntityTooLarge, "body exceeds %d bytes", tooLarge.Limit)
	}
	return New(ErrInvalidInput, http.StatusBadRequest, "reading request body failed")
}

// HTTPStatusCode prefers an AppError's status and otherwise maps the
// sentinel err wraps.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoIndexAvailable):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrInvalidDocumentArray),
		errors.Is(err, ErrInvalidSearchParameter),
		errors.Is(err, ErrInvalidTargetName),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
