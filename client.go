package httr2

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client composes the policy layers around a single logical HTTP exchange:
// cache lookup, throttle admission, credential injection, transport send,
// retry classification and cache store. It is safe for concurrent use; every
// Perform call keeps its own retry state.
type Client struct {
	transport Transport
	timeout   time.Duration

	maxTries        int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	backoffStrategy BackoffStrategy
	isError         ErrorClassifier
	isTransient     TransientClassifier
	isFatal         FatalClassifier
	retryPolicy     RetryPolicy

	throttle  *ThrottleRegistry
	realmFunc RealmFunc

	cache       CacheStore
	cacheVary   []string
	fingerprint FingerprintFunc

	tokens *TokenCache

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		transport:       http.DefaultTransport,
		timeout:         30 * time.Second,
		maxTries:        3,
		initialBackoff:  100 * time.Millisecond,
		maxBackoff:      10 * time.Second,
		backoffStrategy: FullJitter,
		isError:         DefaultErrorClassifier,
		isTransient:     DefaultTransientClassifier,
		isFatal:         nil,
		retryPolicy:     nil,
		throttle:        nil,
		realmFunc:       DefaultRealmFunc,
		cache:           nil,
		fingerprint:     nil,
		tokens:          nil,
		metrics:         nil,
		debug:           DefaultDebugConfig(),
		logger:          nil,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET request against url with the client's policies.
func (c *Client) Get(ctx context.Context, rawurl string) (*Response, error) {
	return c.Perform(ctx, NewRequest(rawurl))
}

// Post performs a POST request with the given content type and body.
func (c *Client) Post(ctx context.Context, rawurl, contentType string, body []byte) (*Response, error) {
	req := NewRequest(rawurl).Method(http.MethodPost).BodyRaw(body, contentType)
	return c.Perform(ctx, req)
}

// Perform executes one logical request, applying cache, throttle, auth and
// retry policies around the transport call. On terminal failure the returned
// error is a *RequestError carrying the attempt count and the last observed
// response or transport error.
func (c *Client) Perform(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if c.validationError != nil {
		return nil, c.validationError
	}

	body, contentType, err := req.finalize()
	if err != nil {
		recordExchange(req, nil, err)
		return nil, err
	}

	endpoint := endpointFromRequest(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debugEnabled(c.debug != nil && c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.method, "url", req.URLString(), "endpoint", endpoint)
	}

	c.metrics.RecordRequestStart(req.method, endpoint)
	defer c.metrics.RecordRequestEnd(req.method, endpoint)

	// Cache lookup before any network work.
	store := c.cacheStoreFor(req)
	var entry *CacheEntry
	var cacheKey string
	lookup := cacheMiss
	if store != nil {
		cacheKey = c.fingerprintFor(req)
		if stored, ok := store.Get(cacheKey); ok {
			entry = stored
			lookup = classifyEntry(stored, time.Now())
		}
		if lookup == cacheFresh {
			resp := responseFromEntry(req, entry)
			c.metrics.RecordCacheHit(req.method, endpoint)
			c.metrics.RecordRequest(req.method, endpoint, resp.StatusCode, time.Since(start))
			if c.debugEnabled(c.debug != nil && c.debug.LogCache) {
				c.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			recordExchange(req, resp, nil)
			return resp, nil
		}
		c.metrics.RecordCacheMiss(req.method, endpoint)
		if c.debugEnabled(c.debug != nil && c.debug.LogCache) {
			c.logger.Debug("Cache miss", "requestID", requestID, "cacheKey", cacheKey, "revalidate", lookup == cacheStale)
		}
	}

	timeout := req.policy.timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	policy := c.retryPolicyFor(req)
	realm := req.policy.realm
	if realm == "" {
		realm = c.realmFunc(req)
	}
	authCfg := req.policy.auth

	var lastResp *Response
	var lastErr error
	attempt := 0
	authRetried := false

	for {
		attempt++

		waited, err := c.throttleFor().Acquire(ctx, realm)
		if err != nil {
			failure := c.terminalError(req, requestID, ErrorTypeTransport, "request cancelled while throttled", err, nil, attempt-1, start)
			recordExchange(req, nil, failure)
			return nil, failure
		}
		c.metrics.RecordThrottleWait(realm, waited)
		if waited > 0 && c.debugEnabled(c.debug != nil && c.debug.LogThrottle) {
			c.logger.Debug("Throttled", "requestID", requestID, "realm", realm, "waited", waited)
		}

		if attempt > 1 {
			c.metrics.RecordRetry(req.method, endpoint, attempt-1)
			if c.debugEnabled(c.debug != nil && c.debug.LogRetries) {
				c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxTries", c.maxTriesFor(req), "endpoint", endpoint)
			}
		}

		hreq, err := req.httpRequest(body, contentType)
		if err != nil {
			failure := c.terminalError(req, requestID, ErrorTypeValidation, "request build failed", err, nil, attempt, start)
			recordExchange(req, nil, failure)
			return nil, failure
		}
		hreq = hreq.WithContext(ctx)
		if lookup == cacheStale {
			addConditionalHeaders(hreq, entry)
		}

		if authCfg != nil {
			if err := c.injectAuth(ctx, hreq, authCfg, requestID); err != nil {
				// Surface the failure against the performed request; the
				// token-endpoint context stays reachable through the cause.
				failure := c.terminalError(req, requestID, ErrorTypeAuth, "no usable token obtainable", err, nil, attempt, start)
				c.metrics.RecordError(ErrorTypeAuth, req.method, endpoint)
				recordExchange(req, nil, failure)
				return nil, failure
			}
		}

		hresp, err := c.transport.RoundTrip(hreq)
		if err != nil {
			lastResp = nil
			lastErr = err
		} else {
			resp, readErr := newResponse(req, hresp)
			if readErr != nil {
				lastResp = nil
				lastErr = readErr
			} else {
				lastResp = resp
				lastErr = nil
			}
		}

		// A 304 answers a conditional request: refresh the stored entry's
		// freshness and serve the cached body.
		if lastErr == nil && entry != nil && lastResp.StatusCode == http.StatusNotModified {
			updated := refreshEntry(entry, lastResp, time.Now())
			if putErr := store.Put(cacheKey, updated); putErr != nil && c.debugEnabled(c.debug != nil && c.debug.LogCache) {
				c.logger.Warn("Cache update failed", "requestID", requestID, "cacheKey", cacheKey, "error", putErr)
			}
			resp := responseFromEntry(req, updated)
			resp.NotModified = true
			c.metrics.RecordCacheRevalidation(req.method, endpoint)
			c.metrics.RecordRequest(req.method, endpoint, resp.StatusCode, time.Since(start))
			recordExchange(req, resp, nil)
			return resp, nil
		}

		// A 401 carrying invalid_token invalidates the cached credential and
		// earns exactly one extra attempt with fresh credentials.
		if lastErr == nil && authCfg != nil && !authRetried && indicatesInvalidToken(lastResp) {
			authRetried = true
			c.tokenCacheFor(authCfg).Invalidate(TokenKey(authCfg))
			c.metrics.RecordOAuthExchange("invalidate")
			if c.debugEnabled(c.debug != nil && c.debug.LogAuth) {
				c.logger.Warn("Token invalidated", "requestID", requestID, "endpoint", endpoint)
			}
			continue
		}

		delay, retry := policy.ShouldRetry(lastResp, lastErr, attempt)
		if !retry {
			break
		}

		if c.debugEnabled(c.debug != nil && c.debug.LogRetries) {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}
		if err := sleepContext(ctx, delay); err != nil {
			failure := c.terminalError(req, requestID, ErrorTypeTransport, "request cancelled during backoff", err, lastResp, attempt, start)
			recordExchange(req, lastResp, failure)
			return nil, failure
		}
	}

	duration := time.Since(start)

	if lastErr != nil {
		failure := c.terminalError(req, requestID, ErrorTypeTransport, "transport request failed", lastErr, nil, attempt, start)
		c.metrics.RecordError(ErrorTypeTransport, req.method, endpoint)
		c.metrics.RecordRequest(req.method, endpoint, 0, duration)
		recordExchange(req, nil, failure)
		return nil, failure
	}

	c.metrics.RecordRequest(req.method, endpoint, lastResp.StatusCode, duration)

	if c.errorClassifierFor(req)(lastResp) {
		failure := c.terminalError(req, requestID, ErrorTypeHTTP, http.StatusText(lastResp.StatusCode), nil, lastResp, attempt, start)
		c.metrics.RecordError(ErrorTypeHTTP, req.method, endpoint)
		recordExchange(req, lastResp, failure)
		return nil, failure
	}

	if store != nil && storable(lastResp) {
		stored := newCacheEntry(lastResp, time.Now())
		if putErr := store.Put(cacheKey, stored); putErr != nil {
			if c.debugEnabled(c.debug != nil && c.debug.LogCache) {
				c.logger.Warn("Cache store failed", "requestID", requestID, "cacheKey", cacheKey, "error", putErr)
			}
		} else if c.debugEnabled(c.debug != nil && c.debug.LogCache) {
			c.logger.Debug("Response cached", "requestID", requestID, "cacheKey", cacheKey)
		}
	}

	recordExchange(req, lastResp, nil)
	return lastResp, nil
}

// injectAuth resolves the current token for the request's auth config and
// sets the Authorization header. An explicit Authorization header is never
// overwritten.
func (c *Client) injectAuth(ctx context.Context, hreq *http.Request, cfg *AuthConfig, requestID string) error {
	if hreq.Header.Get("Authorization") != "" {
		return nil
	}

	cache := c.tokenCacheFor(cfg)
	key := TokenKey(cfg)

	lock := cache.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	token := cache.get(key)
	now := time.Now()

	switch {
	case token == nil:
		fresh, err := cfg.Flow.Acquire(ctx, cfg.Client, cfg.Params)
		if err != nil {
			return err
		}
		c.metrics.RecordOAuthExchange("acquire")
		if c.debugEnabled(c.debug != nil && c.debug.LogAuth) {
			c.logger.Debug("Token acquired", "requestID", requestID, "flow", cfg.Flow.Name())
		}
		cache.set(key, fresh)
		token = fresh

	case token.Expired(now):
		var fresh *Token
		var err error
		if token.RefreshToken != "" {
			fresh, err = refreshExchange(ctx, cfg.Client, token.RefreshToken)
			if err == nil {
				c.metrics.RecordOAuthExchange("refresh")
				if c.debugEnabled(c.debug != nil && c.debug.LogAuth) {
					c.logger.Debug("Token refreshed", "requestID", requestID, "flow", cfg.Flow.Name())
				}
			}
		}
		if fresh == nil {
			// Refresh failed or no refresh token: re-run the full flow once.
			fresh, err = cfg.Flow.Acquire(ctx, cfg.Client, cfg.Params)
			if err != nil {
				return err
			}
			c.metrics.RecordOAuthExchange("acquire")
			if c.debugEnabled(c.debug != nil && c.debug.LogAuth) {
				c.logger.Debug("Token re-acquired", "requestID", requestID, "flow", cfg.Flow.Name())
			}
		}
		cache.set(key, fresh)
		token = fresh
	}

	hreq.Header.Set("Authorization", token.Type()+" "+token.AccessToken)
	return nil
}

func (c *Client) debugEnabled(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag && c.logger != nil
}

func (c *Client) throttleFor() *ThrottleRegistry {
	if c.throttle != nil {
		return c.throttle
	}
	return DefaultThrottleRegistry()
}

func (c *Client) tokenCacheFor(cfg *AuthConfig) *TokenCache {
	if cfg != nil && cfg.Cache != nil {
		return cfg.Cache
	}
	if c.tokens != nil {
		return c.tokens
	}
	return DefaultTokenCache()
}

func (c *Client) cacheStoreFor(req *Request) CacheStore {
	if req.policy.cache != nil {
		return req.policy.cache.Store
	}
	return c.cache
}

func (c *Client) fingerprintFor(req *Request) string {
	if c.fingerprint != nil {
		return c.fingerprint(req)
	}
	vary := c.cacheVary
	if req.policy.cache != nil && len(req.policy.cache.Vary) > 0 {
		vary = req.policy.cache.Vary
	}
	return Fingerprint(req, vary)
}

func (c *Client) errorClassifierFor(req *Request) ErrorClassifier {
	if req.policy.isError != nil {
		return req.policy.isError
	}
	return c.isError
}

func (c *Client) maxTriesFor(req *Request) int {
	if req.policy.retry != nil && req.policy.retry.MaxTries > 0 {
		return req.policy.retry.MaxTries
	}
	return c.maxTries
}

// retryPolicyFor builds the effective retry policy for one perform call.
// A client-level RetryPolicy override wins unless the request carries its
// own retry configuration.
func (c *Client) retryPolicyFor(req *Request) RetryPolicy {
	if c.retryPolicy != nil && req.policy.retry == nil &&
		req.policy.isError == nil && req.policy.isTransient == nil && req.policy.isFatal == nil {
		return c.retryPolicy
	}

	initial := c.initialBackoff
	max := c.maxBackoff
	strategy := c.backoffStrategy
	if cfg := req.policy.retry; cfg != nil {
		if cfg.InitialBackoff > 0 {
			initial = cfg.InitialBackoff
		}
		if cfg.MaxBackoff > 0 {
			max = cfg.MaxBackoff
		}
		strategy = cfg.Strategy
	}

	policy := NewDefaultRetryPolicyWithStrategy(c.maxTriesFor(req), initial, max, strategy)
	return policy.WithClassifiers(
		firstErrorClassifier(req.policy.isError, c.isError),
		firstTransientClassifier(req.policy.isTransient, c.isTransient),
		firstFatalClassifier(req.policy.isFatal, c.isFatal),
	)
}

func firstErrorClassifier(fns ...ErrorClassifier) ErrorClassifier {
	for _, fn := range fns {
		if fn != nil {
			return fn
		}
	}
	return DefaultErrorClassifier
}

func firstTransientClassifier(fns ...TransientClassifier) TransientClassifier {
	for _, fn := range fns {
		if fn != nil {
			return fn
		}
	}
	return DefaultTransientClassifier
}

func firstFatalClassifier(fns ...FatalClassifier) FatalClassifier {
	for _, fn := range fns {
		if fn != nil {
			return fn
		}
	}
	return nil
}

func (c *Client) terminalError(req *Request, requestID, errorType, message string, cause error, resp *Response, attempts int, start time.Time) *RequestError {
	failure := &RequestError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
		Method:    req.method,
		URL:       req.URLString(),
		Attempts:  attempts,
		MaxTries:  c.maxTriesFor(req),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Response:  resp,
	}
	if resp != nil {
		failure.StatusCode = resp.StatusCode
	}
	return failure
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func endpointFromRequest(req *Request) string {
	if req.url == nil {
		return "unknown"
	}

	host := req.url.Host
	path := req.url.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
