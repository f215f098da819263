package httr2

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

// CacheEntry is one stored response: body, headers, the validator enabling
// conditional revalidation and the freshness metadata controlling whether the
// network can be skipped entirely.
type CacheEntry struct {
	StatusCode   int         `json:"status_code"`
	Header       http.Header `json:"header"`
	Body         []byte      `json:"body"`
	ETag         string      `json:"etag,omitempty"`
	LastModified *time.Time  `json:"last_modified,omitempty"`
	StoredAt     time.Time   `json:"stored_at"`
	// ExpiresAt is zero when the entry has a validator but no explicit
	// freshness lifetime.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// HasValidator reports whether the entry can be revalidated conditionally.
func (e *CacheEntry) HasValidator() bool {
	return e.ETag != "" || e.LastModified != nil
}

// Fresh reports whether the entry may be served without contacting the
// server.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.Before(e.ExpiresAt)
}

// CacheStore is the persistent key-value area consumed by the cache layer.
// Put must be atomic: concurrent writers on the same key leave one complete
// entry, never a torn one.
type CacheStore interface {
	Get(key string) (*CacheEntry, bool)
	Put(key string, entry *CacheEntry) error
	Delete(key string)
	Clear()
}

// Fingerprint derives the canonical cache key for a request: method plus
// normalized URL plus any opted-in vary headers. The default (no vary
// headers) conflates representations that differ only by header; callers
// caching content-negotiated resources must opt the negotiating header in.
func Fingerprint(req *Request, vary []string) string {
	h := sha256.New()
	h.Write([]byte(req.method))
	h.Write([]byte{0})
	if req.url != nil {
		u := *req.url
		u.Fragment = ""
		h.Write([]byte(u.String()))
	}
	if len(vary) > 0 {
		names := make([]string, len(vary))
		copy(names, vary)
		sort.Strings(names)
		for _, name := range names {
			h.Write([]byte{0})
			h.Write([]byte(strings.ToLower(name)))
			h.Write([]byte{0})
			h.Write([]byte(strings.Join(req.header.Values(name), ",")))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
