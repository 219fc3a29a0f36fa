package errors

import (
	"errors"
	"fmt"
)

// Wire codes for the sentinel errors. They travel in RPC responses so that
// a remote caller can still match with errors.Is.
const (
	CodeEmptyContent           = "EMPTY_CONTENT"
	CodeInvalidDocumentArray   = "INVALID_DOCUMENT_ARRAY"
	CodeInvalidSearchParameter = "INVALID_SEARCH_PARAMETER"
	CodeInvalidTargetName      = "INVALID_TARGET_NAME"
	CodeNoIndexAvailable       = "NO_INDEX_AVAILABLE"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeTimeout                = "TIMEOUT"
	CodeInternal               = "INTERNAL"
)

var codes = []struct {
	code     string
	sentinel error
}{
	{CodeEmptyContent, ErrEmptyContent},
	{CodeInvalidDocumentArray, ErrInvalidDocumentArray},
	{CodeInvalidSearchParameter, ErrInvalidSearchParameter},
	{CodeInvalidTargetName, ErrInvalidTargetName},
	{CodeNoIndexAvailable, ErrNoIndexAvailable},
	{CodeNotFound, ErrNotFound},
	{CodeInvalidInput, ErrInvalidInput},
	{CodeUnauthorized, ErrUnauthorized},
	{CodeTimeout, ErrTimeout},
}

// Code returns the wire code of the first sentinel err matches, or
// CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode rebuilds an error carrying message that matches the sentinel
// for code. Unknown codes map to ErrInternal.
func FromCode(code, message string) error {
	sentinel := ErrInternal
	for _, c := range codes {
		if c.code == code {
			sentinel = c.sentinel
			break
		}
	}
	return &remoteError{sentinel: sentinel, message: message}
}

type remoteError struct {
	sentinel error
	message  string
}

func (e *remoteError) Error() string {
	if e.message == "" {
		return e.sentinel.Error()
	}
	return fmt.Sprintf("remote: %s", e.message)
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}
