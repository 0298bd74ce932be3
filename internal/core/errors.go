package core

import (
	"errors"

	"github.com/campuslms/chatcore/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeNotAuthorized  = "not_authorized"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeNotFound       = "not_found"
	ErrCodeStoreFailure   = "store_failure"
	ErrCodeBadRequest     = "bad_request"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// BadRequest builds an error for frames the transport could not decode.
func BadRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// errorFromStore maps a store error to the code reported to the client.
func errorFromStore(err error, notFoundMsg string) *CoreError {
	if errors.Is(err, store.ErrNotFound) {
		return coreError(ErrCodeNotFound, notFoundMsg)
	}
	return coreError(ErrCodeStoreFailure, "storage unavailable, try again")
}
