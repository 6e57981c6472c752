package httputil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/observability"
)

const (
	httpTimeout   = 30 * time.Second
	retryAttempts = 3
)

// Client performs registry requests with caching and retry.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	delay   time.Duration
	headers map[string]string
}

// ClientOptions configures [NewClient].
type ClientOptions struct {
	HTTP    *http.Client      // Default: 30s timeout
	Cache   cache.Cache       // Default: no caching
	Keyer   cache.Keyer       // Default: cache.DefaultKeyer
	TTL     time.Duration     // Default: cache.TTLPackument
	Headers map[string]string // Sent with every request

	RetryDelay time.Duration // Initial backoff (default: 1s)
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		http:    opts.HTTP,
		cache:   opts.Cache,
		keyer:   opts.Keyer,
		ttl:     opts.TTL,
		delay:   opts.RetryDelay,
		headers: opts.Headers,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: httpTimeout}
	}
	if c.cache == nil {
		c.cache = cache.NewNullCache()
	}
	if c.keyer == nil {
		c.keyer = cache.NewDefaultKeyer()
	}
	if c.ttl <= 0 {
		c.ttl = cache.TTLPackument
	}
	if c.delay <= 0 {
		c.delay = time.Second
	}
	return c
}

// Cached decodes the cached value for namespace/key into v, or runs fetch
// with retry and caches v afterwards. With refresh set the cache is only
// written. Cache failures never fail the call.
func (c *Client) Cached(ctx context.Context, namespace, key string, refresh bool, v any, fetch func() error) error {
	ck := c.keyer.HTTPKey(namespace, key)
	hooks := observability.Cache()
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, ck); err == nil && ok && json.Unmarshal(data, v) == nil {
			hooks.OnCacheHit(ctx, namespace)
			return nil
		}
		hooks.OnCacheMiss(ctx, namespace)
	}
	if err := Retry(ctx, retryAttempts, c.delay, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, ck, data, c.ttl) == nil {
			hooks.OnCacheSet(ctx, namespace, len(data))
		}
	}
	return nil
}

// Get performs a GET and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, rawURL string, v any) error {
	return c.GetWithHeaders(ctx, rawURL, nil, v)
}

// GetWithHeaders performs a GET with extra headers. Request headers
// override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	body, err := c.doRequest(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "decode %s", rawURL)
	}
	return nil
}

// Download copies the response body of a GET into w and returns the number
// of bytes written. It is retried as a whole.
func (c *Client) Download(ctx context.Context, rawURL string, w func() io.Writer) (int64, error) {
	var n int64
	err := Retry(ctx, retryAttempts, c.delay, func() error {
		body, err := c.doRequest(ctx, rawURL, nil)
		if err != nil {
			return err
		}
		defer body.Close()
		n, err = io.Copy(w(), body)
		if err != nil {
			return &RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "download %s", rawURL)}
		}
		return nil
	})
	return n, err
}

func (c *Client) doRequest(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, path := hostPath(rawURL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", rawURL)}
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp, rawURL); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(resp *http.Response, rawURL string) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "GET %s: not found", rawURL)
	case code == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RetryableError{Err: &errors.RateLimitedError{RetryAfter: retryAfter, Message: rawURL}}
	case code >= 500:
		return &RetryableError{Err: errors.New(errors.ErrCodeNetwork, "GET %s: status %d", rawURL, code)}
	default:
		return errors.New(errors.ErrCodeNetwork, "GET %s: status %d", rawURL, code)
	}
}

func hostPath(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", rawURL
	}
	return u.Host, u.Path
}
