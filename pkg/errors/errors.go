package errors

import "fmt"

// ErrorType classifies failures of archive operations
type ErrorType string

const (
	// ErrorTypeTransport covers connection failures, timeouts and unreadable bodies
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeRateLimit means the upstream returned 429
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeAuthExpired means the session tokens were rejected
	ErrorTypeAuthExpired ErrorType = "auth_expired"
	// ErrorTypeNotFound means the upstream structure is absent
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeMalformed means the response could not be parsed
	ErrorTypeMalformed ErrorType = "malformed"
	// ErrorTypeCatalog means a catalog statement or transaction failed
	ErrorTypeCatalog ErrorType = "catalog"
	// ErrorTypeFilesystem means an archive tree operation failed
	ErrorTypeFilesystem ErrorType = "filesystem"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error represents a classified archive operation error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a classified error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// NewWithCode creates a classified error carrying an HTTP status code
func NewWithCode(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Code: code}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeRateLimit:
		return true
	case ErrorTypeAuthExpired, ErrorTypeNotFound, ErrorTypeMalformed,
		ErrorTypeCatalog, ErrorTypeFilesystem:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
