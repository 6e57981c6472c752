// Package source defines the boundary between the resolver and whatever
// knows about packages: a registry, a workspace, a local directory.
//
// A [Source] turns a wanted dependency into a concrete package identity and
// manifest. Implementations must be safe for concurrent use; the resolver
// requests all siblings of a node at once. Requests for the same package
// should be cheap to repeat.
package source

import (
	"context"

	"github.com/matzehuels/stackresolve/pkg/manifest"
)

// Resolution says where a package's contents come from.
type Resolution struct {
	Type      string `json:"type,omitempty" yaml:"type,omitempty"` // "" for registry tarballs, "directory" for local dirs
	Tarball   string `json:"tarball,omitempty" yaml:"tarball,omitempty"`
	Integrity string `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`
}

// CurrentPkg is a previously locked package the source may reuse instead
// of resolving the specifier again.
type CurrentPkg struct {
	ID         string
	Name       string
	Version    string
	Resolution Resolution
}

// RequestOptions carries per-request context.
type RequestOptions struct {
	ProjectDir  string      // absolute directory of the requesting project
	LockfileDir string      // absolute workspace root; file: ids are relative to it
	CurrentPkg  *CurrentPkg // locked package to prefer, if still acceptable
	SkipFetch   bool        // dry run: never return a Fetch func
	Update      bool        // ignore CurrentPkg and pick the best match
}

// FetchResult describes fetched package contents.
type FetchResult struct {
	Integrity string
	Size      int64
}

// FetchFunc downloads package contents into the store.
type FetchFunc func(ctx context.Context) (FetchResult, error)

// Response is a resolved package.
type Response struct {
	// ID is the package id: name@version for registry packages,
	// link:<dir relative to the project> for linked directories and
	// file:<dir relative to the lockfile dir> for injected directories.
	ID          string
	Manifest    *manifest.Manifest
	Resolution  Resolution
	ResolvedVia string // "registry", "workspace", "local-directory"

	// IsLocal marks a directory that is linked rather than installed.
	IsLocal  bool
	LocalDir string

	// Unsupported is non-empty when the package cannot be installed on
	// this platform; it holds the reason.
	Unsupported string

	// Fetch is nil when there is nothing to fetch or fetching was skipped.
	Fetch FetchFunc
}

// Source resolves wanted dependencies.
type Source interface {
	Request(ctx context.Context, wanted manifest.WantedDependency, opts RequestOptions) (*Response, error)
}

// Func adapts a function to the Source interface.
type Func func(ctx context.Context, wanted manifest.WantedDependency, opts RequestOptions) (*Response, error)

// Request calls f.
func (f Func) Request(ctx context.Context, wanted manifest.WantedDependency, opts RequestOptions) (*Response, error) {
	return f(ctx, wanted, opts)
}
