package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call to the Remote Access Service.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInvalidRequest
	KindUnauthorized
	KindNotFound
	KindRateLimited
	KindServer
	KindNetwork
	KindRejected // 2xx response with success=false
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid-request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not-found"
	case KindRateLimited:
		return "rate-limited"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	default:
		return "unexpected"
	}
}

// Sentinels for errors.Is checks against an *Error.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrServer         = errors.New("server error")
	ErrNetwork        = errors.New("network error")
	ErrRejected       = errors.New("rejected")
)

var kindSentinels = map[Kind]error{
	KindInvalidRequest: ErrInvalidRequest,
	KindUnauthorized:   ErrUnauthorized,
	KindNotFound:       ErrNotFound,
	KindRateLimited:    ErrRateLimited,
	KindServer:         ErrServer,
	KindNetwork:        ErrNetwork,
	KindRejected:       ErrRejected,
}

// Operator-facing messages.
const (
	msgInvalidRequest = "Invalid request data"
	msgUnauthorized   = "Unauthorized access"
	msgNotFound       = "Resource not found"
	msgRateLimited    = "Too many requests. Please try again later."
	msgServer         = "Server error. Please try again later."
	msgNetwork        = "Network error. Please check your internet connection."
	msgUnexpected     = "An unexpected error occurred"
)

// Error is the single normalized error returned by every Client method.
// Message is safe to show to the operator unchanged.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response was received
	Message string
	Err     error // underlying transport or decode error, if any
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// statusError maps an HTTP error status to an *Error. serverMsg is the
// "error" field of the response body, if any.
func statusError(status int, serverMsg string) *Error {
	e := &Error{Status: status}
	switch status {
	case http.StatusBadRequest:
		e.Kind, e.Message = KindInvalidRequest, orDefault(serverMsg, msgInvalidRequest)
	case http.StatusUnauthorized:
		e.Kind, e.Message = KindUnauthorized, msgUnauthorized
	case http.StatusNotFound:
		e.Kind, e.Message = KindNotFound, orDefault(serverMsg, msgNotFound)
	case http.StatusTooManyRequests:
		e.Kind, e.Message = KindRateLimited, msgRateLimited
	case http.StatusInternalServerError:
		e.Kind, e.Message = KindServer, msgServer
	default:
		e.Kind, e.Message = KindUnexpected, orDefault(serverMsg, fmt.Sprintf("Request failed with status %d", status))
	}
	return e
}

// networkError wraps a failure where no response was received.
func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
}

// unexpectedError wraps failures building a request or decoding a response.
func unexpectedError(err error) *Error {
	msg := msgUnexpected
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Kind: KindUnexpected, Message: msg, Err: err}
}

// rejectedError is returned when the service answers 2xx with success=false.
func rejectedError(status int, serverMsg, fallback string) *Error {
	return &Error{Kind: KindRejected, Status: status, Message: orDefault(serverMsg, fallback)}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
