package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes client errors.
type ErrorCode string

const (
	// CodeMissingCredential indicates a network call was attempted without an API key.
	CodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"

	// CodeConfigurationUnavailable indicates no configuration has been adopted yet.
	CodeConfigurationUnavailable ErrorCode = "CONFIGURATION_UNAVAILABLE"

	// CodeInvalidResponse indicates a non-success HTTP status.
	CodeInvalidResponse ErrorCode = "INVALID_RESPONSE"

	// CodeDecode indicates a response body that could not be decoded.
	CodeDecode ErrorCode = "DECODE_ERROR"

	// CodeNetwork indicates a transport-level failure.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeStorage indicates a persistence read, write or decode failure.
	CodeStorage ErrorCode = "STORAGE_ERROR"
)

// Error is the single error type produced by FlowRL components.
//
// StatusCode is set only for CodeInvalidResponse.
type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error without an underlying cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an Error wrapping err.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewStatusError creates a CodeInvalidResponse error for an unexpected HTTP status.
func NewStatusError(statusCode int, message string) *Error {
	return &Error{Code: CodeInvalidResponse, Message: message, StatusCode: statusCode}
}

// CodeOf extracts the ErrorCode from err.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (ErrorCode, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

// HasCode reports whether err is an Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsMissingCredential returns true if err is a missing credential error.
func IsMissingCredential(err error) bool {
	return HasCode(err, CodeMissingCredential)
}

// IsStorageError returns true if err is a storage error.
func IsStorageError(err error) bool {
	return HasCode(err, CodeStorage)
}

// IsNetworkError returns true if err is a transport-level error.
func IsNetworkError(err error) bool {
	return HasCode(err, CodeNetwork)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
