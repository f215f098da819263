package httr2

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request is an immutable description of a single HTTP exchange: method, URL,
// headers, optional body and the policies to apply around the transport call.
// Every mutating method returns a new Request; the receiver is never changed
// in place, so a Request can be shared and specialized without aliasing
// hazards.
type Request struct {
	method string
	url    *url.URL
	header http.Header
	body   *requestBody

	urlErr error

	policy policySet
}

// requestBody carries either raw bytes with a content type or a structured
// payload pending encoding through a BodyCodec.
type requestBody struct {
	content     []byte
	contentType string
	payload     interface{}
	codec       BodyCodec
}

// policySet is the ordered per-request policy configuration. Configs are
// replaced wholesale by mutators, never edited, so a shallow copy of the
// set is a safe snapshot.
type policySet struct {
	timeout     time.Duration
	retry       *RetryConfig
	realm       string
	cache       *CacheConfig
	auth        *AuthConfig
	isError     ErrorClassifier
	isTransient TransientClassifier
	isFatal     FatalClassifier
}

// RetryConfig overrides the client retry policy for one request.
type RetryConfig struct {
	MaxTries       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Strategy       BackoffStrategy
}

// CacheConfig enables response caching for one request.
type CacheConfig struct {
	Store CacheStore
	// Vary lists the request headers folded into the cache fingerprint.
	// Empty means method+URL only, which conflates content-negotiated
	// representations under one key. Opt in per representation-significant
	// header.
	Vary []string
}

// AuthConfig attaches an OAuth strategy to one request.
type AuthConfig struct {
	Client *OAuthClient
	Flow   Flow
	Params url.Values
	// Cache overrides the process-wide token cache, mainly for tests.
	Cache *TokenCache
}

// NewRequest creates a GET request for the given URL. A malformed URL is
// reported when the request is performed, not here, so building stays
// chainable.
func NewRequest(rawurl string) *Request {
	req := &Request{
		method: http.MethodGet,
		header: make(http.Header),
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		req.urlErr = err
		return req
	}
	req.url = u
	return req
}

func (r *Request) clone() *Request {
	dup := *r
	dup.header = r.header.Clone()
	if dup.header == nil {
		dup.header = make(http.Header)
	}
	if r.url != nil {
		u := *r.url
		dup.url = &u
	}
	if r.body != nil {
		b := *r.body
		dup.body = &b
	}
	return &dup
}

// Method returns a copy of the request with the given HTTP method.
func (r *Request) Method(method string) *Request {
	dup := r.clone()
	dup.method = method
	return dup
}

// URL returns a copy of the request pointing at a new URL.
func (r *Request) URL(rawurl string) *Request {
	dup := r.clone()
	u, err := url.Parse(rawurl)
	if err != nil {
		dup.urlErr = err
		return dup
	}
	dup.url = u
	dup.urlErr = nil
	return dup
}

// Query returns a copy of the request with an added query parameter.
func (r *Request) Query(key, value string) *Request {
	dup := r.clone()
	if dup.url == nil {
		return dup
	}
	q := dup.url.Query()
	q.Add(key, value)
	dup.url.RawQuery = q.Encode()
	return dup
}

// Header returns a copy of the request with the header set, replacing any
// existing values for the key.
func (r *Request) Header(key, value string) *Request {
	dup := r.clone()
	dup.header.Set(key, value)
	return dup
}

// AddHeader returns a copy of the request with the header appended,
// preserving insertion order for duplicate keys.
func (r *Request) AddHeader(key, value string) *Request {
	dup := r.clone()
	dup.header.Add(key, value)
	return dup
}

// BodyRaw returns a copy of the request carrying raw bytes as its body.
func (r *Request) BodyRaw(content []byte, contentType string) *Request {
	dup := r.clone()
	dup.body = &requestBody{content: content, contentType: contentType}
	return dup
}

// BodyJSON returns a copy of the request carrying a structured payload to be
// JSON-encoded when the request is finalized.
func (r *Request) BodyJSON(payload interface{}) *Request {
	dup := r.clone()
	dup.body = &requestBody{payload: payload, codec: JSONCodec{}}
	return dup
}

// BodyForm returns a copy of the request carrying form values to be
// URL-encoded when the request is finalized.
func (r *Request) BodyForm(values url.Values) *Request {
	dup := r.clone()
	dup.body = &requestBody{payload: values, codec: FormCodec{}}
	return dup
}

// Body returns a copy of the request carrying a structured payload encoded
// through the supplied codec.
func (r *Request) Body(payload interface{}, codec BodyCodec) *Request {
	dup := r.clone()
	dup.body = &requestBody{payload: payload, codec: codec}
	return dup
}

// Timeout returns a copy of the request with a per-request deadline covering
// the in-flight transport call and any pending policy sleep.
func (r *Request) Timeout(d time.Duration) *Request {
	dup := r.clone()
	dup.policy.timeout = d
	return dup
}

// Retry returns a copy of the request allowing up to maxTries attempts.
func (r *Request) Retry(maxTries int) *Request {
	dup := r.clone()
	cfg := RetryConfig{MaxTries: maxTries}
	if r.policy.retry != nil {
		cfg = *r.policy.retry
		cfg.MaxTries = maxTries
	}
	dup.policy.retry = &cfg
	return dup
}

// RetryBackoff returns a copy of the request with explicit backoff bounds and
// strategy for its retry policy.
func (r *Request) RetryBackoff(initial, max time.Duration, strategy BackoffStrategy) *Request {
	dup := r.clone()
	cfg := RetryConfig{MaxTries: 1}
	if r.policy.retry != nil {
		cfg = *r.policy.retry
	}
	cfg.InitialBackoff = initial
	cfg.MaxBackoff = max
	cfg.Strategy = strategy
	dup.policy.retry = &cfg
	return dup
}

// Throttle returns a copy of the request gated by the named throttle realm
// instead of the default scheme+host realm. Requests sharing a realm share
// one token bucket.
func (r *Request) Throttle(realm string) *Request {
	dup := r.clone()
	dup.policy.realm = realm
	return dup
}

// Cache returns a copy of the request with response caching in the given
// store. Optional vary headers are folded into the cache fingerprint.
func (r *Request) Cache(store CacheStore, vary ...string) *Request {
	dup := r.clone()
	dup.policy.cache = &CacheConfig{Store: store, Vary: vary}
	return dup
}

// CacheDir returns a copy of the request caching responses in a filesystem
// directory.
func (r *Request) CacheDir(dir string, vary ...string) *Request {
	return r.Cache(NewFileCache(dir), vary...)
}

// Auth returns a copy of the request authenticated via the given OAuth
// client and flow.
func (r *Request) Auth(client *OAuthClient, flow Flow, params url.Values) *Request {
	dup := r.clone()
	dup.policy.auth = &AuthConfig{Client: client, Flow: flow, Params: params}
	return dup
}

// AuthConfig returns a copy of the request carrying a fully specified auth
// configuration, including a token cache override.
func (r *Request) AuthConfig(cfg AuthConfig) *Request {
	dup := r.clone()
	dup.policy.auth = &cfg
	return dup
}

// ErrorClassifier returns a copy of the request with a custom is-error
// predicate replacing the default status >= 400 rule.
func (r *Request) ErrorClassifier(fn ErrorClassifier) *Request {
	dup := r.clone()
	dup.policy.isError = fn
	return dup
}

// TransientClassifier returns a copy of the request with a custom
// is-transient predicate replacing the default 429/503/5xx rule.
func (r *Request) TransientClassifier(fn TransientClassifier) *Request {
	dup := r.clone()
	dup.policy.isTransient = fn
	return dup
}

// FatalClassifier returns a copy of the request with a predicate marking
// transport failures as non-retryable.
func (r *Request) FatalClassifier(fn FatalClassifier) *Request {
	dup := r.clone()
	dup.policy.isFatal = fn
	return dup
}

// MethodName reports the request's HTTP method.
func (r *Request) MethodName() string { return r.method }

// URLString reports the request's URL, or "" if none was set.
func (r *Request) URLString() string {
	if r.url == nil {
		return ""
	}
	return r.url.String()
}

// HeaderValues reports a copy of the header multimap.
func (r *Request) HeaderValues() http.Header { return r.header.Clone() }

// finalize validates the request and materializes a pending structured body.
// It returns the encoded body bytes and content type without mutating the
// request.
func (r *Request) finalize() ([]byte, string, error) {
	if r.urlErr != nil {
		return nil, "", &RequestError{
			Type:      ErrorTypeValidation,
			Message:   "invalid request URL",
			Cause:     r.urlErr,
			Method:    r.method,
			Timestamp: time.Now(),
		}
	}
	if r.url == nil || r.url.Scheme == "" || r.url.Host == "" {
		return nil, "", &RequestError{
			Type:      ErrorTypeValidation,
			Message:   ErrMissingURL.Error(),
			Cause:     ErrMissingURL,
			Method:    r.method,
			URL:       r.URLString(),
			Timestamp: time.Now(),
		}
	}

	if r.body == nil {
		return nil, "", nil
	}
	if r.body.payload == nil {
		return r.body.content, r.body.contentType, nil
	}

	codec := r.body.codec
	if codec == nil {
		codec = JSONCodec{}
	}
	content, contentType, err := codec.Encode(r.body.payload)
	if err != nil {
		return nil, "", &RequestError{
			Type:      ErrorTypeValidation,
			Message:   "body encoding failed",
			Cause:     err,
			Method:    r.method,
			URL:       r.URLString(),
			Timestamp: time.Now(),
		}
	}
	return content, contentType, nil
}

// httpRequest builds a fresh *http.Request for one attempt. Each attempt gets
// its own body reader so retries never observe a drained body.
func (r *Request) httpRequest(body []byte, contentType string) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	var hreq *http.Request
	var err error
	if reader != nil {
		hreq, err = http.NewRequest(r.method, r.url.String(), reader)
	} else {
		hreq, err = http.NewRequest(r.method, r.url.String(), nil)
	}
	if err != nil {
		return nil, err
	}

	for key, values := range r.header {
		for _, value := range values {
			hreq.Header.Add(key, value)
		}
	}
	if contentType != "" && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	return hreq, nil
}

// DryRun renders the finalized request (request line, headers, body preview)
// without sending it over the transport. Useful for testing and debugging
// without network access.
func (r *Request) DryRun() (string, error) {
	body, contentType, err := r.finalize()
	if err != nil {
		return "", err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\n", r.method, r.url.RequestURI())
	fmt.Fprintf(&b, "Host: %s\n", r.url.Host)
	if contentType != "" && r.header.Get("Content-Type") == "" {
		fmt.Fprintf(&b, "Content-Type: %s\n", contentType)
	}
	if err := r.header.Write(&b); err != nil {
		return "", err
	}
	b.WriteString("\n")
	if len(body) > 0 {
		const previewLimit = 1024
		preview := body
		truncated := false
		if len(preview) > previewLimit {
			preview = preview[:previewLimit]
			truncated = true
		}
		b.Write(preview)
		if truncated {
			fmt.Fprintf(&b, "\n... (%d more bytes)", len(body)-previewLimit)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
