package httr2

import (
	"net/http"
	"testing"
	"time"
)

func TestParseCacheControl(t *testing.T) {
	tests := []struct {
		name   string
		header string
		check  func(t *testing.T, d *CacheDirectives)
	}{
		{
			name:   "empty",
			header: "",
			check: func(t *testing.T, d *CacheDirectives) {
				if d.NoStore || d.NoCache || d.MaxAge != nil {
					t.Errorf("Expected zero directives, got %+v", d)
				}
			},
		},
		{
			name:   "max-age",
			header: "max-age=300",
			check: func(t *testing.T, d *CacheDirectives) {
				if d.MaxAge == nil || *d.MaxAge != 300*time.Second {
					t.Errorf("Expected max-age 300s, got %v", d.MaxAge)
				}
			},
		},
		{
			name:   "quoted max-age",
			header: `max-age="60"`,
			check: func(t *testing.T, d *CacheDirectives) {
				if d.MaxAge == nil || *d.MaxAge != 60*time.Second {
					t.Errorf("Expected max-age 60s, got %v", d.MaxAge)
				}
			},
		},
		{
			name:   "no-store",
			header: "no-store",
			check: func(t *testing.T, d *CacheDirectives) {
				if !d.NoStore {
					t.Error("Expected NoStore")
				}
			},
		},
		{
			name:   "combined",
			header: "public, max-age=120, must-revalidate",
			check: func(t *testing.T, d *CacheDirectives) {
				if !d.Public || !d.MustRevalidate {
					t.Errorf("Expected public and must-revalidate, got %+v", d)
				}
				if d.MaxAge == nil || *d.MaxAge != 120*time.Second {
					t.Errorf("Expected max-age 120s, got %v", d.MaxAge)
				}
			},
		},
		{
			name:   "invalid max-age ignored",
			header: "max-age=abc",
			check: func(t *testing.T, d *CacheDirectives) {
				if d.MaxAge != nil {
					t.Errorf("Expected nil MaxAge for invalid value, got %v", d.MaxAge)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, parseCacheControl(tt.header))
		})
	}
}

func TestParseHTTPDate(t *testing.T) {
	want := time.Date(2015, time.October, 21, 7, 28, 0, 0, time.UTC)

	formats := []string{
		"Wed, 21 Oct 2015 07:28:00 UTC",
		"Wednesday, 21-Oct-15 07:28:00 UTC",
		"Wed Oct 21 07:28:00 2015",
	}
	for _, header := range formats {
		got := parseHTTPDate(header)
		if got == nil || !got.Equal(want) {
			t.Errorf("parseHTTPDate(%q) = %v, want %v", header, got, want)
		}
	}

	if got := parseHTTPDate("not a date"); got != nil {
		t.Errorf("Expected nil for unparseable date, got %v", got)
	}
	if got := parseHTTPDate(""); got != nil {
		t.Errorf("Expected nil for empty header, got %v", got)
	}
}

func TestFreshnessExpiry(t *testing.T) {
	now := time.Now()

	header := http.Header{"Cache-Control": []string{"max-age=60"}}
	expiry, ok := freshnessExpiry(header, now)
	if !ok || !expiry.Equal(now.Add(60*time.Second)) {
		t.Errorf("Expected expiry now+60s, got %v ok=%v", expiry, ok)
	}

	// max-age wins over Expires.
	header = http.Header{
		"Cache-Control": []string{"max-age=10"},
		"Expires":       []string{now.Add(time.Hour).UTC().Format(time.RFC1123)},
	}
	expiry, ok = freshnessExpiry(header, now)
	if !ok || !expiry.Equal(now.Add(10*time.Second)) {
		t.Errorf("Expected max-age to win over Expires, got %v ok=%v", expiry, ok)
	}

	if _, ok := freshnessExpiry(http.Header{"Cache-Control": []string{"no-store"}}, now); ok {
		t.Error("no-store must report no freshness")
	}
	if _, ok := freshnessExpiry(http.Header{}, now); ok {
		t.Error("Headers without directives must report no freshness")
	}
}

func TestStorable(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want bool
	}{
		{
			name: "etag",
			resp: &Response{StatusCode: 200, Header: http.Header{"Etag": []string{`"a"`}}},
			want: true,
		},
		{
			name: "last-modified",
			resp: &Response{StatusCode: 200, Header: http.Header{"Last-Modified": []string{"Wed, 21 Oct 2015 07:28:00 UTC"}}},
			want: true,
		},
		{
			name: "max-age only",
			resp: &Response{StatusCode: 200, Header: http.Header{"Cache-Control": []string{"max-age=60"}}},
			want: true,
		},
		{
			name: "nothing",
			resp: &Response{StatusCode: 200, Header: http.Header{}},
			want: false,
		},
		{
			name: "no-store overrides validator",
			resp: &Response{StatusCode: 200, Header: http.Header{"Etag": []string{`"a"`}, "Cache-Control": []string{"no-store"}}},
			want: false,
		},
		{
			name: "non-200",
			resp: &Response{StatusCode: 404, Header: http.Header{"Etag": []string{`"a"`}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storable(tt.resp); got != tt.want {
				t.Errorf("storable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyEntry(t *testing.T) {
	now := time.Now()

	if got := classifyEntry(nil, now); got != cacheMiss {
		t.Errorf("nil entry: got %v, want miss", got)
	}

	fresh := &CacheEntry{
		Header:    http.Header{},
		StoredAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}
	if got := classifyEntry(fresh, now); got != cacheFresh {
		t.Errorf("fresh entry: got %v, want fresh", got)
	}

	staleWithValidator := &CacheEntry{
		Header:    http.Header{},
		ETag:      `"a"`,
		StoredAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}
	if got := classifyEntry(staleWithValidator, now); got != cacheStale {
		t.Errorf("stale entry with validator: got %v, want stale", got)
	}

	staleNoValidator := &CacheEntry{
		Header:    http.Header{},
		StoredAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}
	if got := classifyEntry(staleNoValidator, now); got != cacheMiss {
		t.Errorf("stale entry without validator: got %v, want miss", got)
	}

	// must-revalidate forces revalidation even while fresh.
	mustRevalidate := &CacheEntry{
		Header:    http.Header{"Cache-Control": []string{"max-age=60, must-revalidate"}},
		ETag:      `"a"`,
		StoredAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}
	if got := classifyEntry(mustRevalidate, now); got != cacheStale {
		t.Errorf("must-revalidate entry: got %v, want stale", got)
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2015, time.October, 21, 7, 28, 0, 0, time.UTC)
	entry := &CacheEntry{ETag: `"v1"`, LastModified: &lastMod}

	hreq, _ := http.NewRequest("GET", "https://example.com", nil)
	addConditionalHeaders(hreq, entry)

	if got := hreq.Header.Get("If-None-Match"); got != `"v1"` {
		t.Errorf("If-None-Match = %q", got)
	}
	if got := hreq.Header.Get("If-Modified-Since"); got != lastMod.Format(time.RFC1123) {
		t.Errorf("If-Modified-Since = %q", got)
	}
}

func TestRefreshEntry(t *testing.T) {
	now := time.Now()
	entry := &CacheEntry{
		StatusCode: 200,
		Header:     http.Header{"Cache-Control": []string{"max-age=60"}},
		Body:       []byte("body"),
		ETag:       `"v1"`,
		StoredAt:   now.Add(-2 * time.Minute),
		ExpiresAt:  now.Add(-time.Minute),
	}

	notModified := &Response{StatusCode: 304, Header: http.Header{"Cache-Control": []string{"max-age=120"}}}
	updated := refreshEntry(entry, notModified, now)

	if string(updated.Body) != "body" || updated.ETag != `"v1"` {
		t.Error("Refresh must keep the stored body and validator")
	}
	if !updated.ExpiresAt.Equal(now.Add(120 * time.Second)) {
		t.Errorf("Expected fresh expiry from 304 headers, got %v", updated.ExpiresAt)
	}

	// Without new directives the stored ones are re-applied from now.
	bare := &Response{StatusCode: 304, Header: http.Header{}}
	updated = refreshEntry(entry, bare, now)
	if !updated.ExpiresAt.Equal(now.Add(60 * time.Second)) {
		t.Errorf("Expected stored max-age re-applied, got %v", updated.ExpiresAt)
	}

	// Original entry is untouched.
	if !entry.ExpiresAt.Equal(now.Add(-time.Minute)) {
		t.Error("refreshEntry must not mutate its input")
	}
}
