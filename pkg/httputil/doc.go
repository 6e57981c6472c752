// Package httputil provides the HTTP plumbing shared by registry sources.
//
// # Overview
//
//   - [Client]: JSON GETs with default headers, response caching and retry
//   - [Retry]: retry with exponential backoff for transient failures
//
// # Caching
//
// [Client.Cached] stores decoded responses in any [cache.Cache] as JSON,
// keyed by a [cache.Keyer]. The CLI uses a file cache below
// ~/.cache/stackresolve/, the server uses Redis.
//
//	var doc packument
//	err := client.Cached(ctx, "npm", name, false, &doc, func() error {
//	    return client.Get(ctx, url, &doc)
//	})
//
// # Retry
//
// Transient failures are wrapped in [RetryableError] and retried:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Defaults are 3 attempts with a 1 second initial delay that doubles after
// each failure. Other errors, including 404, are returned at once.
package httputil
