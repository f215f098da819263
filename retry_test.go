package httr2

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func respWithStatus(status int, header http.Header) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{StatusCode: status, Header: header}
}

func TestDefaultRetryPolicyShouldRetry(t *testing.T) {
	policy := NewDefaultRetryPolicy(3, time.Millisecond, 10*time.Millisecond)

	tests := []struct {
		name    string
		resp    *Response
		err     error
		attempt int
		want    bool
	}{
		{"success response", respWithStatus(200, nil), nil, 1, false},
		{"transient 503", respWithStatus(503, nil), nil, 1, true},
		{"transient 429", respWithStatus(429, nil), nil, 1, true},
		{"transient 500", respWithStatus(500, nil), nil, 1, true},
		{"persistent 404", respWithStatus(404, nil), nil, 1, false},
		{"persistent 400", respWithStatus(400, nil), nil, 1, false},
		{"transport failure", nil, errors.New("connection refused"), 1, true},
		{"budget exhausted", respWithStatus(503, nil), nil, 3, false},
		{"transport budget exhausted", nil, errors.New("timeout"), 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := policy.ShouldRetry(tt.resp, tt.err, tt.attempt)
			if got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultRetryPolicyRetryAfterPrecedence(t *testing.T) {
	policy := NewDefaultRetryPolicy(3, time.Millisecond, 5*time.Millisecond)

	header := http.Header{"Retry-After": []string{"2"}}
	delay, retry := policy.ShouldRetry(respWithStatus(429, header), nil, 1)
	if !retry {
		t.Fatal("Expected retry for 429")
	}
	if delay != 2*time.Second {
		t.Errorf("Delay = %v, want Retry-After value to win over backoff", delay)
	}
}

func TestDefaultRetryPolicyFatalTransportError(t *testing.T) {
	fatal := errors.New("certificate rejected")
	policy := NewDefaultRetryPolicy(3, time.Millisecond, 5*time.Millisecond).
		WithClassifiers(nil, nil, func(err error) bool { return errors.Is(err, fatal) })

	if _, retry := policy.ShouldRetry(nil, fatal, 1); retry {
		t.Error("Fatal transport error must not be retried")
	}
	if _, retry := policy.ShouldRetry(nil, errors.New("reset"), 1); !retry {
		t.Error("Non-fatal transport error must be retried")
	}
}

func TestDefaultRetryPolicyCustomClassifiers(t *testing.T) {
	policy := NewDefaultRetryPolicy(3, time.Millisecond, 5*time.Millisecond).
		WithClassifiers(
			func(resp *Response) bool { return resp.StatusCode != 200 },
			func(resp *Response) bool { return resp.StatusCode == 409 },
			nil,
		)

	if _, retry := policy.ShouldRetry(respWithStatus(409, nil), nil, 1); !retry {
		t.Error("409 must be retried under the custom transient classifier")
	}
	if _, retry := policy.ShouldRetry(respWithStatus(503, nil), nil, 1); retry {
		t.Error("503 is no longer transient under the custom classifier")
	}
}

func TestDefaultRetryPolicyBackoffBounded(t *testing.T) {
	policy := NewDefaultRetryPolicy(10, 10*time.Millisecond, 80*time.Millisecond)

	for attempt := 1; attempt < 10; attempt++ {
		delay, retry := policy.ShouldRetry(respWithStatus(503, nil), nil, attempt)
		if !retry {
			t.Fatalf("Expected retry at attempt %d", attempt)
		}
		if delay < 0 || delay > 160*time.Millisecond {
			t.Errorf("Attempt %d delay %v outside bounds", attempt, delay)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"zero seconds", "0", 0},
		{"negative", "-3", 0},
		{"capped at one hour", "7200", time.Hour},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	if got < 25*time.Second || got > 30*time.Second {
		t.Errorf("parseRetryAfter(date) = %v, want about 30s", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("parseRetryAfter(past date) = %v, want 0", got)
	}
}

func TestBackoffStrategySelection(t *testing.T) {
	policy := NewDefaultRetryPolicyWithStrategy(3, time.Millisecond, 10*time.Millisecond, DecorrelatedJitter)
	delay, retry := policy.ShouldRetry(respWithStatus(503, nil), nil, 1)
	if !retry {
		t.Fatal("Expected retry")
	}
	if delay < time.Millisecond {
		t.Errorf("Decorrelated jitter delay %v below initial backoff", delay)
	}
}
