// Package httr2 provides a declarative HTTP request orchestration layer with
// composable cross-cutting policies applied around a single outbound exchange:
//
//   - Immutable request building (every mutation returns a new Request)
//   - Retries with pluggable backoff (full jitter by default) and Retry-After support
//   - Process-wide token-bucket throttling keyed by realm (host by default)
//   - Persistent HTTP-semantics-aware response caching (validators, freshness,
//     conditional requests, 304 revalidation)
//   - Pluggable OAuth flows with token caching, refresh and reactive invalidation
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure the client, chained
//     value mutations configure the request
//   - Policies are swappable strategy values, never subclasses
//   - Safe concurrent use of a single *Client instance
//   - The underlying transport and body codecs are consumed as interfaces
//
// Typical usage:
//
//	client := httr2.New(
//	    httr2.WithMaxTries(3),
//	    httr2.WithThrottle(10, 2),
//	    httr2.WithFileCache("/tmp/httr2-cache"),
//	)
//	req := httr2.NewRequest("https://api.example.com/data").
//	    Header("Accept", "application/json").
//	    Retry(5)
//	resp, err := client.Perform(ctx, req)
//
// Only transient failures (transport errors, 429/503/5xx) trigger retries by
// default; persistent client errors get exactly one attempt. Override with
// ErrorClassifier / TransientClassifier on the request or client. The library
// avoids opinionated logging: provide a Logger (e.g. via WithZerolog) and
// enable debug flags selectively for insight without noise.
package httr2
