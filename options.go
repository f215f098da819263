package httr2

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WithTransport sets the transport used to send finalized requests.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithHTTPTransport sets an *http.Transport (or any http.RoundTripper) as
// the transport.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithTimeout sets the default per-request deadline covering the transport
// call and any policy sleep. Individual requests override it via
// Request.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxTries sets the total attempt budget per perform call.
func WithMaxTries(n int) Option {
	return func(c *Client) {
		c.maxTries = n
	}
}

// WithBackoff sets the initial and maximum backoff durations.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithBackoffStrategy selects the wait-time algorithm between retries.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
	}
}

// WithErrorClassifier replaces the default status >= 400 error rule.
func WithErrorClassifier(fn ErrorClassifier) Option {
	return func(c *Client) {
		c.isError = fn
	}
}

// WithTransientClassifier replaces the default 429/503/5xx transient rule.
func WithTransientClassifier(fn TransientClassifier) Option {
	return func(c *Client) {
		c.isTransient = fn
	}
}

// WithFatalClassifier marks transport failures as non-retryable.
func WithFatalClassifier(fn FatalClassifier) Option {
	return func(c *Client) {
		c.isFatal = fn
	}
}

// WithRetryPolicy installs a full custom retry policy, bypassing the
// classifier-based default.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithThrottle gives the client its own throttle registry whose buckets
// default to the given capacity and refill rate (tokens per second).
func WithThrottle(capacity int, rate float64) Option {
	return func(c *Client) {
		c.throttle = NewThrottleRegistry(capacity, rate)
	}
}

// WithThrottleRegistry shares an existing registry, e.g. one budget across
// several clients.
func WithThrottleRegistry(registry *ThrottleRegistry) Option {
	return func(c *Client) {
		c.throttle = registry
	}
}

// WithRealmFunc overrides how throttle realms are derived from requests.
func WithRealmFunc(fn RealmFunc) Option {
	return func(c *Client) {
		c.realmFunc = fn
	}
}

// WithCache enables response caching in the given store for every request.
func WithCache(store CacheStore) Option {
	return func(c *Client) {
		c.cache = store
	}
}

// WithFileCache enables response caching in a filesystem directory.
func WithFileCache(dir string) Option {
	return func(c *Client) {
		c.cache = NewFileCache(dir)
	}
}

// WithCacheVary folds the named request headers into every cache
// fingerprint.
func WithCacheVary(headers ...string) Option {
	return func(c *Client) {
		c.cacheVary = headers
	}
}

// WithFingerprintFunc replaces the cache key derivation entirely.
func WithFingerprintFunc(fn FingerprintFunc) Option {
	return func(c *Client) {
		c.fingerprint = fn
	}
}

// WithTokenCache gives the client its own OAuth token cache instead of the
// shared process-wide one.
func WithTokenCache(cache *TokenCache) Option {
	return func(c *Client) {
		c.tokens = cache
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a plain console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithZerolog enables debug logging through a zerolog logger.
func WithZerolog(logger zerolog.Logger) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewZerologLogger(logger)
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateThrottleConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateTransportConfig()...)

	if len(problems) > 0 {
		return &RequestError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.maxTries < 1 {
		problems = append(problems, "maxTries must be at least 1")
	}
	if c.initialBackoff <= 0 {
		problems = append(problems, "initialBackoff must be positive")
	}
	if c.maxBackoff < c.initialBackoff {
		problems = append(problems, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.timeout < 0 {
		problems = append(problems, "timeout must be non-negative")
	}
	if c.maxTries > 100 {
		problems = append(problems, "maxTries > 100 may cause excessive resource usage")
	}

	return problems
}

func (c *Client) validateThrottleConfig() []string {
	var problems []string

	if c.throttle != nil {
		if c.throttle.defaultCapacity <= 0 {
			problems = append(problems, "throttle capacity must be positive")
		}
		if c.throttle.defaultRate <= 0 {
			problems = append(problems, "throttle refill rate must be positive")
		}
	}
	if c.realmFunc == nil {
		problems = append(problems, "realm function cannot be nil")
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}

func (c *Client) validateTransportConfig() []string {
	var problems []string

	if c.transport == nil {
		problems = append(problems, "transport cannot be nil")
	}
	if c.isError == nil {
		problems = append(problems, "error classifier cannot be nil")
	}
	if c.isTransient == nil {
		problems = append(problems, "transient classifier cannot be nil")
	}

	return problems
}
