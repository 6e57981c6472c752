// Package cache stores opaque byte values with a time to live.
//
// Three backends are provided: [FileCache] for the CLI, [RedisCache] for the
// resolve server, and [NullCache] when caching is disabled. Keys are built by
// a [Keyer] so that callers never concatenate key strings by hand.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value store with per-entry expiry.
type Cache interface {
	// Get returns the stored value. A missing or expired entry yields
	// (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Default TTLs.
const (
	TTLPackument = 24 * time.Hour // Registry metadata
	TTLResolve   = 7 * 24 * time.Hour
)

// Keyer builds cache keys.
type Keyer interface {
	// HTTPKey returns the key for a cached HTTP response.
	HTTPKey(namespace, key string) string

	// ResolveKey returns the key for a cached resolution result.
	ResolveKey(opts ResolveKeyOpts) string
}

// ResolveKeyOpts identifies one resolution request. Two requests with equal
// options resolve to the same lockfile when no registry state changed.
type ResolveKeyOpts struct {
	Registry  string            `json:"registry"`
	Manifests map[string]string `json:"manifests"` // project id -> manifest hash
	Catalogs  string            `json:"catalogs,omitempty"`
	Lockfile  string            `json:"lockfile,omitempty"`
	AutoPeers bool              `json:"auto_peers,omitempty"`
	RootPeers bool              `json:"root_peers,omitempty"`
	NoDedupe  bool              `json:"no_dedupe,omitempty"`
	Strict    bool              `json:"strict,omitempty"`
}

// DefaultKeyer is the standard [Keyer].
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// ResolveKey hashes opts under the "resolve" prefix.
func (DefaultKeyer) ResolveKey(opts ResolveKeyOpts) string {
	return hashKey("resolve", opts)
}
