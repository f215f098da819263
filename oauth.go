package httr2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuthClient identifies an application against an authorization server. It
// is long-lived, constructed once and immutable. The secret may be held
// sealed and is decrypted only at use.
type OAuthClient struct {
	ID       string
	TokenURL string
	AuthURL  string

	secret string
	sealed *SealedSecret
	store  SecretStore

	// HTTPClient performs token-endpoint exchanges. Defaults to a plain
	// client; flows never recurse through Perform.
	HTTPClient *http.Client
}

// NewOAuthClient creates an OAuth client with a plaintext secret.
func NewOAuthClient(id, secret, tokenURL string) *OAuthClient {
	return &OAuthClient{ID: id, secret: secret, TokenURL: tokenURL}
}

// NewOAuthClientSealed creates an OAuth client whose secret stays encrypted
// at rest and is opened through the store on each use.
func NewOAuthClientSealed(id string, sealed *SealedSecret, store SecretStore, tokenURL string) *OAuthClient {
	return &OAuthClient{ID: id, sealed: sealed, store: store, TokenURL: tokenURL}
}

// Secret resolves the client secret, decrypting a sealed secret if needed.
func (c *OAuthClient) Secret() (string, error) {
	if c.sealed != nil && c.store != nil {
		plaintext, err := c.store.Open(c.sealed)
		if err != nil {
			return "", &RequestError{Type: ErrorTypeAuth, Message: "secret decryption failed", Cause: err}
		}
		return string(plaintext), nil
	}
	return c.secret, nil
}

func (c *OAuthClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Token is a cached bearer credential.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresAt is zero when the server declared no expiry.
	ExpiresAt time.Time
}

// expirySkew treats tokens about to expire as already expired so a token
// injected now survives the request it authenticates.
const expirySkew = 5 * time.Second

// Expired reports whether the token needs refreshing.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Add(expirySkew).Before(t.ExpiresAt)
}

// Type reports the token type, defaulting to Bearer.
func (t *Token) Type() string {
	if t.TokenType == "" {
		return "Bearer"
	}
	return t.TokenType
}

// Flow is one OAuth token-acquisition protocol variant. Flows differ only in
// the token-endpoint exchange shape; caching, injection and invalidation are
// shared.
type Flow interface {
	// Name distinguishes flows in the token cache key.
	Name() string
	// Acquire runs the flow against the client's token endpoint.
	Acquire(ctx context.Context, client *OAuthClient, params url.Values) (*Token, error)
}

// TokenCache holds tokens process-wide keyed by client+flow+params. Each key
// has its own acquisition lock, so concurrent requests for one key run a
// single exchange while other keys proceed independently.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]*Token
	locks  map[string]*sync.Mutex

	// exchange counters, observable by tests
	acquisitions map[string]int
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens:       make(map[string]*Token),
		locks:        make(map[string]*sync.Mutex),
		acquisitions: make(map[string]int),
	}
}

func (tc *TokenCache) keyLock(key string) *sync.Mutex {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	lock, ok := tc.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		tc.locks[key] = lock
	}
	return lock
}

func (tc *TokenCache) get(key string) *Token {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.tokens[key]
}

func (tc *TokenCache) set(key string, token *Token) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tokens[key] = token
	tc.acquisitions[key]++
}

// Invalidate drops the token for key, forcing the next injection to re-run
// the flow.
func (tc *TokenCache) Invalidate(key string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.tokens, key)
}

// Exchanges reports how many token exchanges were stored under key. Test
// observability hook.
func (tc *TokenCache) Exchanges(key string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.acquisitions[key]
}

// Reset drops all cached tokens and counters. Test hook.
func (tc *TokenCache) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tokens = make(map[string]*Token)
	tc.locks = make(map[string]*sync.Mutex)
	tc.acquisitions = make(map[string]int)
}

var (
	defaultTokenCacheOnce sync.Once
	defaultTokenCache     *TokenCache
)

// DefaultTokenCache returns the shared process-wide token cache, initialized
// lazily on first use.
func DefaultTokenCache() *TokenCache {
	defaultTokenCacheOnce.Do(func() {
		defaultTokenCache = NewTokenCache()
	})
	return defaultTokenCache
}

// TokenKey derives the cache key for a client+flow+params combination.
func TokenKey(cfg *AuthConfig) string {
	h := sha256.New()
	h.Write([]byte(cfg.Client.ID))
	h.Write([]byte{0})
	h.Write([]byte(cfg.Client.TokenURL))
	h.Write([]byte{0})
	h.Write([]byte(cfg.Flow.Name()))
	h.Write([]byte{0})
	h.Write([]byte(cfg.Params.Encode()))
	return hex.EncodeToString(h.Sum(nil))
}

// indicatesInvalidToken reports whether a 401 response carries an
// invalid_token indication in its WWW-Authenticate header or error body.
func indicatesInvalidToken(resp *Response) bool {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	if strings.Contains(resp.Header.Get("WWW-Authenticate"), "invalid_token") {
		return true
	}
	return strings.Contains(string(resp.Body), "invalid_token")
}
