package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypePermission ErrorType = "permission_denied"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeDownload   ErrorType = "download"
	ErrorTypeParsing    ErrorType = "parsing"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error is the single error type returned by the client, iterator and
// downloader layers. Only the fields relevant to Type are populated.
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
	URL        string
	Err        error
}

func (e *Error) Error() string {
	switch e.Type {
	case ErrorTypeRateLimit:
		return fmt.Sprintf("%s error (code %d): %s, retry after %s", e.Type, e.Code, e.Message, e.RetryAfter)
	case ErrorTypeDownload:
		return fmt.Sprintf("%s error: %s: %s", e.Type, e.URL, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a resource that does not exist.
func NotFound(resource string) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: fmt.Sprintf("%s not found", resource), Code: 404}
}

// PermissionDenied reports a resource that exists but cannot be read
// without elevated access, e.g. a private profile.
func PermissionDenied(resource string) *Error {
	return &Error{Type: ErrorTypePermission, Message: fmt.Sprintf("%s is private", resource), Code: 403}
}

// RateLimited carries the wait the server suggested.
func RateLimited(code int, retryAfter time.Duration) *Error {
	return &Error{Type: ErrorTypeRateLimit, Message: "rate limited", Code: code, RetryAfter: retryAfter}
}

// Transport wraps a network level failure. Code is always 0.
func Transport(err error) *Error {
	return &Error{Type: ErrorTypeTransport, Message: err.Error(), Err: err}
}

// API reports a non-retryable application level failure.
func API(code int, message string) *Error {
	return &Error{Type: ErrorTypeAPI, Message: message, Code: code}
}

// TransportExhausted reports a network failure that outlived its retries.
// It is an API error with code 0; the Transport error stays in the chain.
func TransportExhausted(err error) *Error {
	return &Error{Type: ErrorTypeAPI, Message: err.Error(), Err: Transport(err)}
}

// AuthenticationRequired reports a capability that needs cookies.
func AuthenticationRequired(feature string) *Error {
	return &Error{Type: ErrorTypeAuth, Message: fmt.Sprintf("%s requires cookies (use --cookies)", feature), Code: 401}
}

// DownloadFailed reports a single media item that could not be fetched.
func DownloadFailed(url string, err error) *Error {
	return &Error{Type: ErrorTypeDownload, Message: err.Error(), URL: url, Err: err}
}

// Parsing reports an unexpected response payload.
func Parsing(code int, message string, err error) *Error {
	return &Error{Type: ErrorTypeParsing, Message: message, Code: code, Err: err}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is an *Error of the given type.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// RetryAfterOf returns the suggested wait of a rate limit error.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if stderrors.As(err, &e) && e.Type == ErrorTypeRateLimit {
		return e.RetryAfter
	}
	return 0
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}
