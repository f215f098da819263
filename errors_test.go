package httr2

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRequestErrorError(t *testing.T) {
	err := &RequestError{
		Type:       ErrorTypeHTTP,
		Message:    "Not Found",
		Method:     "GET",
		URL:        "https://example.com/missing",
		StatusCode: 404,
		Attempts:   1,
		MaxTries:   3,
	}

	msg := err.Error()
	for _, want := range []string{"HTTP: Not Found", "GET https://example.com/missing", "status=404", "attempt 1/3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() missing %q: %s", want, msg)
		}
	}
}

func TestRequestErrorErrorWithRequestID(t *testing.T) {
	err := &RequestError{Type: ErrorTypeTransport, Message: "failed", RequestID: "req-1"}
	if !strings.HasPrefix(err.Error(), "[req-1]") {
		t.Errorf("Error() = %q, want request ID prefix", err.Error())
	}
}

func TestRequestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RequestError{Type: ErrorTypeTransport, Message: "failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is must reach the cause through Unwrap")
	}
}

func TestRequestErrorIsMatchesType(t *testing.T) {
	err := &RequestError{Type: ErrorTypeAuth, Message: "no token"}

	if !errors.Is(err, &RequestError{Type: ErrorTypeAuth}) {
		t.Error("Same type must match")
	}
	if errors.Is(err, &RequestError{Type: ErrorTypeHTTP}) {
		t.Error("Different type must not match")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &RequestError{Type: ErrorTypeTransport}, true},
		{"http 429", &RequestError{Type: ErrorTypeHTTP, StatusCode: 429}, true},
		{"http 503", &RequestError{Type: ErrorTypeHTTP, StatusCode: 503}, true},
		{"http 500", &RequestError{Type: ErrorTypeHTTP, StatusCode: 500}, true},
		{"http 404", &RequestError{Type: ErrorTypeHTTP, StatusCode: 404}, false},
		{"auth", &RequestError{Type: ErrorTypeAuth}, false},
		{"validation", &RequestError{Type: ErrorTypeValidation}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestErrorDebugInfo(t *testing.T) {
	err := &RequestError{
		Type:       ErrorTypeHTTP,
		Message:    "Service Unavailable",
		RequestID:  "req-9",
		Method:     "POST",
		URL:        "https://example.com/jobs",
		StatusCode: 503,
		Attempts:   3,
		MaxTries:   3,
		Timestamp:  time.Now(),
		Duration:   250 * time.Millisecond,
		Cause:      errors.New("upstream down"),
	}

	info := err.DebugInfo()
	for _, want := range []string{
		"Error Type: HTTP",
		"Request ID: req-9",
		"Status Code: 503",
		"Attempts: 3/3",
		"Cause: upstream down",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo() missing %q:\n%s", want, info)
		}
	}
}

func TestRequestErrorNilReceiver(t *testing.T) {
	var err *RequestError
	if err.Error() != "<nil>" {
		t.Errorf("nil Error() = %q", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("nil Unwrap() must be nil")
	}
}
