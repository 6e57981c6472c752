// Package npm resolves registry specifiers against an npm-compatible
// registry.
//
// # Overview
//
// [Source] fetches the abbreviated packument of a package (the install
// metadata of every published version), picks a version for the wanted
// range and returns its manifest and tarball resolution. Non-registry
// specifiers (workspace:, link:, file:) are handed to a fallback source,
// usually [local.Source].
//
// # Usage
//
//	src := npm.New(npm.Options{
//	    Registry: "https://registry.npmjs.org",
//	    Cache:    fileCache,
//	    Local:    local.New(projects),
//	})
//	res, err := resolve.ResolveDependencyTree(ctx, projects, resolve.Options{Source: src})
//
// # Version Selection
//
// A locked version is reused while it still satisfies the range, unless
// RequestOptions.Update is set. Otherwise a dist-tag named by the range is
// used, then the "latest" tag when it satisfies the range, then the highest
// satisfying version.
//
// # Caching
//
// Packuments are cached twice: decoded in a bounded in-process LRU, and as
// JSON in the [cache.Cache] passed in Options with a 24 hour TTL. Concurrent
// requests for one package share a single HTTP request.
//
// # Fetching
//
// The returned Fetch func downloads the tarball and verifies it against the
// integrity published by the registry. When Options.StoreDir is set the
// tarball is kept there, named by its hex SHA-512.
package npm
