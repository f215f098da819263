package httr2

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// cacheLookup classifies what the cache can do for a request.
type cacheLookup int

const (
	// cacheMiss: nothing usable stored, go to the network.
	cacheMiss cacheLookup = iota
	// cacheFresh: serve the stored entry without network access.
	cacheFresh
	// cacheStale: stored entry exists with a validator; attach conditional
	// headers and let the server decide.
	cacheStale
)

// CacheDirectives represents parsed Cache-Control directives.
type CacheDirectives struct {
	NoStore        bool
	NoCache        bool
	MaxAge         *time.Duration
	MustRevalidate bool
	Public         bool
	Private        bool
}

// parseCacheControl parses Cache-Control header into structured directives.
func parseCacheControl(header string) *CacheDirectives {
	directives := &CacheDirectives{}
	if header == "" {
		return directives
	}

	parts := strings.Split(header, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "=") {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.TrimSpace(kv[0])
			value := strings.Trim(strings.TrimSpace(kv[1]), "\"")

			if key == "max-age" {
				if seconds, err := strconv.Atoi(value); err == nil {
					maxAge := time.Duration(seconds) * time.Second
					directives.MaxAge = &maxAge
				}
			}
		} else {
			switch part {
			case "no-store":
				directives.NoStore = true
			case "no-cache":
				directives.NoCache = true
			case "must-revalidate":
				directives.MustRevalidate = true
			case "public":
				directives.Public = true
			case "private":
				directives.Private = true
			}
		}
	}

	return directives
}

// parseHTTPDate parses an HTTP date header in any of the accepted formats.
func parseHTTPDate(header string) *time.Time {
	if header == "" {
		return nil
	}

	// Try RFC1123 format (preferred)
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return &t
	}

	// Try RFC850 format
	if t, err := time.Parse(time.RFC850, header); err == nil {
		return &t
	}

	// Try ANSIC format
	if t, err := time.Parse(time.ANSIC, header); err == nil {
		return &t
	}

	return nil
}

// freshnessExpiry determines when a response stops being fresh based on its
// headers. ok is false when the response declares no explicit freshness.
func freshnessExpiry(header http.Header, receivedAt time.Time) (time.Time, bool) {
	directives := parseCacheControl(header.Get("Cache-Control"))

	if directives.NoStore || directives.NoCache {
		return time.Time{}, false
	}

	// Prefer max-age over Expires
	if directives.MaxAge != nil {
		return receivedAt.Add(*directives.MaxAge), true
	}

	if expires := parseHTTPDate(header.Get("Expires")); expires != nil {
		return *expires, true
	}

	return time.Time{}, false
}

// storable reports whether a response may enter the cache: it needs either a
// validator or an explicit freshness directive, and must not be marked
// no-store. Responses with neither are passed through uncached.
func storable(resp *Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	directives := parseCacheControl(resp.Header.Get("Cache-Control"))
	if directives.NoStore {
		return false
	}
	if resp.Header.Get("ETag") != "" || resp.Header.Get("Last-Modified") != "" {
		return true
	}
	_, hasFreshness := freshnessExpiry(resp.Header, time.Now())
	return hasFreshness
}

// newCacheEntry builds the stored form of a response.
func newCacheEntry(resp *Response, receivedAt time.Time) *CacheEntry {
	entry := &CacheEntry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       resp.Body,
		ETag:       resp.Header.Get("ETag"),
		StoredAt:   receivedAt,
	}
	entry.LastModified = parseHTTPDate(resp.Header.Get("Last-Modified"))
	if expiry, ok := freshnessExpiry(resp.Header, receivedAt); ok {
		entry.ExpiresAt = expiry
	}
	return entry
}

// classifyEntry decides how a stored entry may be used right now.
func classifyEntry(entry *CacheEntry, now time.Time) cacheLookup {
	if entry == nil {
		return cacheMiss
	}
	directives := parseCacheControl(entry.Header.Get("Cache-Control"))
	if entry.Fresh(now) && !directives.NoCache && !directives.MustRevalidate {
		return cacheFresh
	}
	if entry.HasValidator() {
		return cacheStale
	}
	return cacheMiss
}

// addConditionalHeaders attaches If-None-Match / If-Modified-Since for a
// stale entry's validators.
func addConditionalHeaders(hreq *http.Request, entry *CacheEntry) {
	if entry.ETag != "" {
		hreq.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != nil {
		hreq.Header.Set("If-Modified-Since", entry.LastModified.Format(time.RFC1123))
	}
}

// refreshEntry updates stored freshness metadata after a 304, keeping the
// stored body and validators.
func refreshEntry(entry *CacheEntry, notModified *Response, now time.Time) *CacheEntry {
	updated := *entry
	updated.StoredAt = now
	if etag := notModified.Header.Get("ETag"); etag != "" {
		updated.ETag = etag
	}
	if expiry, ok := freshnessExpiry(notModified.Header, now); ok {
		updated.ExpiresAt = expiry
	} else if expiry, ok := freshnessExpiry(entry.Header, now); ok {
		updated.ExpiresAt = expiry
	}
	return &updated
}

// responseFromEntry materializes a cached entry as a Response.
func responseFromEntry(req *Request, entry *CacheEntry) *Response {
	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header.Clone(),
		Body:       entry.Body,
		Request:    req,
		FromCache:  true,
	}
}
