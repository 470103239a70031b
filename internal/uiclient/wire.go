package uiclient

import (
	"errors"
	"fmt"
)

// SessionInfo is the wire body returned when a session is opened.
type SessionInfo struct {
	Session    string `json:"session"`
	RoleCenter *Form  `json:"roleCenter"`
}

// ErrorBody is the wire body of a rejected call.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Wire error codes.
const (
	CodeSessionClosed = "session_closed"
	CodeNotFound      = "not_found"
	CodeUnauthorized  = "unauthorized"
	CodeRejected      = "rejected"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return CodeSessionClosed
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAuthentication):
		return CodeUnauthorized
	default:
		return CodeRejected
	}
}

// ErrorFromCode rebuilds an error from its wire representation so that
// errors.Is keeps working across the transport.
func ErrorFromCode(code, message string) error {
	switch code {
	case CodeSessionClosed:
		return fmt.Errorf("%w: %s", ErrSessionClosed, message)
	case CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case CodeUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthentication, message)
	default:
		return &RejectedError{Message: message}
	}
}

// RejectedError is a business-level rejection reported by the application.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "uiclient: rejected: " + e.Message
}
