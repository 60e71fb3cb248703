package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeSigning     ErrorType = "signing"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Sentinel errors for the crawl pipeline. Wrap them with fmt.Errorf("%w")
// and test with errors.Is.
var (
	// ErrSigningFailed means the signature provider exhausted its attempts.
	ErrSigningFailed = stderrors.New("signing failed")
	// ErrRateLimited is the upstream throttling signal.
	ErrRateLimited = stderrors.New("rate limited")
	// ErrDetailFetchExhausted means a detail fetch stayed rate limited for
	// every allowed attempt.
	ErrDetailFetchExhausted = stderrors.New("detail fetch exhausted")
	// ErrListingFetchFailed is fatal to one account's pass.
	ErrListingFetchFailed = stderrors.New("listing fetch failed")
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRateLimited) and errors.Is(err, ErrSigningFailed)
// match typed errors as well as the sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ErrSigningFailed:
		return e.Type == ErrorTypeSigning
	}
	return false
}

// New creates a typed error
func New(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// Wrap creates a typed error around a cause
func Wrap(errorType ErrorType, code int, err error, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf("%s: %v", message, err),
		Code:    code,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsRateLimited reports whether err carries the upstream throttling signal
func IsRateLimited(err error) bool {
	return err != nil && stderrors.Is(err, ErrRateLimited)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeSigning:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404, 461, 471:
		return false
	default:
		return statusCode >= 500
	}
}
