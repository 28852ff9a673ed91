package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a fatal ingestion failure.
type Code string

const (
	// CodeInvalidConfiguration means webhook settings or credentials are missing or unusable.
	CodeInvalidConfiguration Code = "invalid_configuration"
	// CodeRemoteUnavailable means the remote API could not be reached within the retry ceiling.
	CodeRemoteUnavailable Code = "remote_api_unavailable"
	// CodeRemoteError means the remote API answered with an explicit error.
	CodeRemoteError Code = "remote_api_error"
	// CodeStoreFailure means a record store read or write failed.
	CodeStoreFailure Code = "store_failure"
)

// Error is the single typed error returned for fatal ingestion failures.
// Nothing from the event has been persisted when it is returned.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to the status returned to the webhook sender.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeRemoteUnavailable, CodeRemoteError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code of a wrapped *Error, or an empty code.
func CodeOf(err error) Code {
	var ingestErr *Error
	if errors.As(err, &ingestErr) {
		return ingestErr.Code
	}
	return ""
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
