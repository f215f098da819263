package httr2

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants classify terminal failures surfaced by Perform.
const (
	// ErrorTypeTransport covers connect/timeout/DNS failures. A transport
	// failure never carries an HTTP status code.
	ErrorTypeTransport = "Transport"
	// ErrorTypeHTTP covers responses classified as errors (4xx/5xx by default).
	ErrorTypeHTTP = "HTTP"
	// ErrorTypeAuth covers OAuth flow failures: no usable token obtainable.
	ErrorTypeAuth = "Auth"
	// ErrorTypeCache covers cache store corruption or IO failures.
	ErrorTypeCache = "Cache"
	// ErrorTypeValidation covers invalid client or request configuration.
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrMissingURL is returned when a request is finalized without scheme+host.
	ErrMissingURL = errors.New("httr2: request URL must have scheme and host")

	// ErrNoToken is returned when an OAuth flow yields no usable token.
	ErrNoToken = errors.New("httr2: no usable token obtainable")
)

// RequestError is the structured error surfaced on terminal failure. It
// always carries the method and URL of the request, the status or transport
// cause, and the number of attempts made.
type RequestError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	MaxTries   int
	Timestamp  time.Time
	Duration   time.Duration

	// Response holds the last response observed before failing, if any.
	Response *Response
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Method != "" && e.URL != "" {
		msg = fmt.Sprintf("%s [%s %s]", msg, e.Method, e.URL)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s status=%d", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempts, e.MaxTries)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. Transport failures and 429/503/5xx responses are
// transient; other HTTP errors and configuration errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Type {
		case ErrorTypeTransport:
			return true
		case ErrorTypeHTTP:
			return reqErr.StatusCode == 429 || reqErr.StatusCode == 503 || reqErr.StatusCode >= 500
		default:
			return false
		}
	}

	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempts > 0 {
		info += fmt.Sprintf("Attempts: %d/%d\n", e.Attempts, e.MaxTries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
