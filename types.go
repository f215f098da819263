package httr2

import (
	"net/http"

	"github.com/google/uuid"
)

// Transport is the network capability consumed by the client: send one
// finalized request, get back a response or a transport-level failure.
// *http.Transport and http.RoundTripperFunc-style adapters both satisfy it.
type Transport interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(*http.Request) (*http.Response, error)

func (f TransportFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// ErrorClassifier reports whether a response counts as an error.
// The default treats any status >= 400 as an error.
type ErrorClassifier func(resp *Response) bool

// TransientClassifier reports whether an error response is likely to succeed
// on retry. The default treats 429 and all 5xx as transient.
type TransientClassifier func(resp *Response) bool

// FatalClassifier marks a transport-level failure as non-retryable.
// The default retries every transport failure.
type FatalClassifier func(err error) bool

// RealmFunc derives the throttle realm for a request. The default groups
// requests by scheme and host.
type RealmFunc func(req *Request) string

// FingerprintFunc derives the cache key for a request.
type FingerprintFunc func(req *Request) string

// Logger is the minimal structured logging interface used for debug output.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig controls which stages of the pipeline emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogThrottle  bool
	LogCache     bool
	LogAuth      bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables logging for every pipeline stage with
// UUID request identifiers.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogThrottle:  true,
		LogCache:     true,
		LogAuth:      true,
		RequestIDGen: uuid.NewString,
	}
}

// Option configures a Client.
type Option func(*Client)
