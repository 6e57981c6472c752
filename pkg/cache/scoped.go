package cache

// ScopedKeyer wraps a Keyer with a prefix. The npm source scopes its keys by
// registry host so that two registries never share packuments:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "registry.npmjs.org:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer that prepends prefix to every key.
// A nil inner keyer defaults to [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// ResolveKey generates a prefixed key for resolution results.
func (k *ScopedKeyer) ResolveKey(opts ResolveKeyOpts) string {
	return k.prefix + k.inner.ResolveKey(opts)
}
