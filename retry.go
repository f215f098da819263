package httr2

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/maxheld83/httr2/internal/backoff"
)

// BackoffStrategy selects the wait-time algorithm between retry attempts.
type BackoffStrategy int

const (
	// FullJitter waits runif(0, min(cap, base*2^attempt)). The default.
	FullJitter BackoffStrategy = iota
	// ExponentialJitter waits base*2^attempt plus a bounded random fraction.
	ExponentialJitter
	// DecorrelatedJitter waits random_between(base, min(cap, base*3^attempt)).
	DecorrelatedJitter
)

func (s BackoffStrategy) strategy() internalbackoff.Strategy {
	switch s {
	case ExponentialJitter:
		return internalbackoff.ExponentialJitterStrategy{}
	case DecorrelatedJitter:
		return internalbackoff.DecorrelatedJitterStrategy{}
	default:
		return internalbackoff.FullJitterStrategy{}
	}
}

// RetryPolicy decides, after each attempt, whether to retry and how long to
// wait. attempt is the number of attempts already made (>= 1 on first call).
// Exactly one of resp and err is meaningful: err carries a transport-level
// failure, resp an HTTP response of any status.
type RetryPolicy interface {
	ShouldRetry(resp *Response, err error, attempt int) (time.Duration, bool)
}

// DefaultRetryPolicy classifies outcomes with pluggable predicates:
//
//   - transport failures are retryable unless isFatal marks them fatal
//   - responses with isError false are success
//   - error responses with isTransient true are retryable; all other error
//     responses are terminal on first occurrence regardless of remaining tries
//
// A Retry-After response header takes precedence over computed backoff.
type DefaultRetryPolicy struct {
	maxTries          int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	isError           ErrorClassifier
	isTransient       TransientClassifier
	isFatal           FatalClassifier
	backoff           internalbackoff.Strategy
}

// NewDefaultRetryPolicy creates a retry policy allowing up to maxTries total
// attempts with full-jitter backoff and the default error classification.
func NewDefaultRetryPolicy(maxTries int, initialBackoff, maxBackoff time.Duration) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		maxTries:          maxTries,
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		isError:           DefaultErrorClassifier,
		isTransient:       DefaultTransientClassifier,
		isFatal:           nil,
		backoff:           internalbackoff.FullJitterStrategy{},
	}
}

// NewDefaultRetryPolicyWithStrategy creates a retry policy using a specific
// backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxTries int, initialBackoff, maxBackoff time.Duration, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := NewDefaultRetryPolicy(maxTries, initialBackoff, maxBackoff)
	policy.backoff = strategy.strategy()
	return policy
}

// WithClassifiers returns a copy of the policy using the supplied predicates.
// Nil predicates keep the defaults.
func (p *DefaultRetryPolicy) WithClassifiers(isError ErrorClassifier, isTransient TransientClassifier, isFatal FatalClassifier) *DefaultRetryPolicy {
	dup := *p
	if isError != nil {
		dup.isError = isError
	}
	if isTransient != nil {
		dup.isTransient = isTransient
	}
	if isFatal != nil {
		dup.isFatal = isFatal
	}
	return &dup
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(resp *Response, err error, attempt int) (time.Duration, bool) {
	shouldRetry := false
	var delay time.Duration

	if err != nil {
		shouldRetry = p.isFatal == nil || !p.isFatal(err)
	} else if resp != nil {
		if !p.isError(resp) {
			return 0, false
		}
		if p.isTransient(resp) {
			shouldRetry = true
			delay = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		// Persistent client errors get exactly one attempt regardless of
		// remaining tries.
	}

	if !shouldRetry || attempt >= p.maxTries {
		return 0, false
	}

	if delay == 0 {
		delay = p.backoff.Calculate(attempt-1, p.initialBackoff, p.maxBackoff, p.backoffMultiplier, p.jitter)
	}
	return delay, true
}

// MaxTries reports the total attempt budget.
func (p *DefaultRetryPolicy) MaxTries() int { return p.maxTries }

// DefaultErrorClassifier treats any status >= 400 as an error.
func DefaultErrorClassifier(resp *Response) bool {
	return resp.StatusCode >= 400
}

// DefaultTransientClassifier treats 429, 503 and any 5xx as transient.
func DefaultTransientClassifier(resp *Response) bool {
	return resp.StatusCode == 429 || resp.StatusCode == 503 || resp.StatusCode >= 500
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	// Try parsing as seconds first
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour // Cap at 1 hour
			}
			return delay
		}
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour { // Cap at 1 hour
			return delay
		}
	}

	return 0
}
