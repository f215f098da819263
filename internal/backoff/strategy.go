package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the wait before a retry attempt. Implementations must be
// safe for concurrent use; all state lives in the arguments.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number.
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration
}

// FullJitterStrategy picks a wait uniformly from [0, min(cap, base*mult^attempt)].
// Full jitter spreads concurrent retries across the whole backoff window.
type FullJitterStrategy struct{}

// Calculate implements the Strategy interface for full jitter.
func (FullJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, _ float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	upper := time.Duration(float64(initialBackoff) * pow(multiplier, attempt))
	if upper < 0 || upper > maxBackoff {
		upper = maxBackoff
	}
	if upper <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(upper))
}

// ExponentialJitterStrategy grows the wait geometrically and adds a bounded
// random fraction on top.
type ExponentialJitterStrategy struct{}

// Calculate implements the Strategy interface for exponential backoff with jitter.
func (ExponentialJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	backoff := time.Duration(float64(initialBackoff) * pow(multiplier, attempt))
	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		jitterAmount := time.Duration(float64(backoff) * jitter * rand.Float64())
		if backoff+jitterAmount > maxBackoff {
			backoff = maxBackoff
		} else {
			backoff += jitterAmount
		}
	}
	return backoff
}

// DecorrelatedJitterStrategy implements AWS-style decorrelated jitter:
// random_between(base, min(cap, base * 3^attempt)). Smoother tail latencies
// than exponential jitter under heavy contention.
type DecorrelatedJitterStrategy struct{}

// Calculate implements the Strategy interface for decorrelated jitter.
func (DecorrelatedJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initialBackoff
	}

	// Prevent overflow by limiting attempt
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initialBackoff)
	upper := base * pow(3.0, attempt)

	maxBackoffFloat := float64(maxBackoff)
	if upper > maxBackoffFloat || upper < 0 {
		upper = maxBackoffFloat
	}
	if upper < base {
		upper = base
	}

	delay := base + rand.Float64()*(upper-base)

	result := time.Duration(delay)
	if result < 0 || result > maxBackoff {
		result = maxBackoff
	}
	return result
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

// Pow is a public version of pow for callers computing backoff bounds.
func Pow(base float64, exponent int) float64 {
	return pow(base, exponent)
}
