package httr2

import (
	"context"
	"sync"
	"time"
)

// ThrottleRegistry holds process-wide token buckets keyed by realm. Buckets
// are created lazily on first use and never removed during process lifetime;
// the realm population is expected to stay small (one per host or logical
// API). Safe for concurrent use.
type ThrottleRegistry struct {
	mu      sync.Mutex
	buckets map[string]*throttleBucket

	defaultCapacity int
	defaultRate     float64
}

// throttleBucket is the shared mutable token-bucket state for one realm.
// Tokens are fractional so refill math stays exact at sub-token granularity.
type throttleBucket struct {
	mu         sync.Mutex
	capacity   float64
	fillRate   float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// NewThrottleRegistry creates a registry whose buckets default to the given
// capacity and refill rate (tokens per second).
func NewThrottleRegistry(capacity int, rate float64) *ThrottleRegistry {
	return &ThrottleRegistry{
		buckets:         make(map[string]*throttleBucket),
		defaultCapacity: capacity,
		defaultRate:     rate,
	}
}

// SetPolicy fixes capacity and refill rate for one realm, overriding the
// registry defaults. Existing tokens are clamped to the new capacity.
func (r *ThrottleRegistry) SetPolicy(realm string, capacity int, rate float64) {
	bucket := r.bucket(realm)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.capacity = float64(capacity)
	bucket.fillRate = rate
	if bucket.tokens > bucket.capacity {
		bucket.tokens = bucket.capacity
	}
}

func (r *ThrottleRegistry) bucket(realm string) *throttleBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.buckets[realm]
	if !ok {
		bucket = &throttleBucket{
			capacity:   float64(r.defaultCapacity),
			fillRate:   r.defaultRate,
			tokens:     float64(r.defaultCapacity),
			lastRefill: time.Now(),
		}
		r.buckets[realm] = bucket
	}
	return bucket
}

// Acquire blocks the calling goroutine until the realm's bucket admits one
// request and returns how long it waited. The token is reserved while the
// bucket lock is held, so concurrent callers on the same realm can never
// over-admit. A done context aborts the wait.
func (r *ThrottleRegistry) Acquire(ctx context.Context, realm string) (time.Duration, error) {
	bucket := r.bucket(realm)

	bucket.mu.Lock()
	bucket.refill(time.Now())
	bucket.tokens--
	wait := time.Duration(0)
	starved := false
	if bucket.tokens < 0 {
		if bucket.fillRate > 0 {
			wait = time.Duration(-bucket.tokens / bucket.fillRate * float64(time.Second))
		} else {
			// A bucket that never refills can never admit past capacity.
			starved = true
		}
	}
	bucket.mu.Unlock()

	if starved {
		<-ctx.Done()
		bucket.mu.Lock()
		bucket.tokens++
		if bucket.tokens > bucket.capacity {
			bucket.tokens = bucket.capacity
		}
		bucket.mu.Unlock()
		return 0, ctx.Err()
	}

	if wait <= 0 {
		return 0, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return wait, nil
	case <-ctx.Done():
		// Hand the reservation back so a cancelled caller does not burn
		// another caller's budget.
		bucket.mu.Lock()
		bucket.tokens++
		if bucket.tokens > bucket.capacity {
			bucket.tokens = bucket.capacity
		}
		bucket.mu.Unlock()
		return 0, ctx.Err()
	}
}

// refill credits tokens for elapsed time, capped at capacity.
// Callers must hold bucket.mu.
func (b *throttleBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.fillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Tokens reports the current token count for a realm, refilled to now.
// Intended for metrics and tests.
func (r *ThrottleRegistry) Tokens(realm string) float64 {
	bucket := r.bucket(realm)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.refill(time.Now())
	return bucket.tokens
}

// Reset drops every bucket. Test hook only; in-flight waiters keep their
// already-computed waits.
func (r *ThrottleRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[string]*throttleBucket)
}

// DefaultRealmFunc groups requests by scheme and host, so every request to
// one origin shares a budget.
func DefaultRealmFunc(req *Request) string {
	if req.url == nil {
		return "unknown"
	}
	return req.url.Scheme + "://" + req.url.Host
}

var (
	defaultThrottleOnce sync.Once
	defaultThrottle     *ThrottleRegistry
)

// DefaultThrottleRegistry returns the shared process-wide registry used when
// a client is not given its own. Initialized lazily on first use.
func DefaultThrottleRegistry() *ThrottleRegistry {
	defaultThrottleOnce.Do(func() {
		defaultThrottle = NewThrottleRegistry(10, 10)
	})
	return defaultThrottle
}
