package resolve

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackresolve/pkg/catalog"
	"github.com/matzehuels/stackresolve/pkg/deppath"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
	"github.com/matzehuels/stackresolve/pkg/source"
)

const (
	DefaultNetworkConcurrency   = 16                       // Concurrent source requests per sibling group
	DefaultPeersSuffixMaxLength = deppath.DefaultMaxLength // Longest peer suffix kept verbatim
)

// Patch is a patch file applied to every package it matches.
type Patch struct {
	Path string // Patch file, relative to the lockfile dir
	Hash string // Content hash, becomes part of the package identity
}

// Options configures a resolution run.
type Options struct {
	Source      source.Source      // Package source (required)
	Lockfile    *lockfile.Lockfile // Previous resolution to prefer versions from (optional)
	LockfileDir string             // Workspace root; project ids are relative to it
	Catalogs    catalog.Catalogs   // Catalog entries for catalog: specifiers

	// PatchedDependencies maps "name@version", "name@range" or "name" to a patch.
	PatchedDependencies map[string]Patch
	AllowUnusedPatches  bool // Unapplied patches are logged instead of failing

	AutoInstallPeers              bool // Add missing required peers as direct dependencies
	StrictPeerDependencies        bool // Fail when peer dependencies are missing or bad
	ResolvePeersFromWorkspaceRoot bool // Root project dependencies satisfy peers of every project
	DisableDedupePeerDependents   bool // Keep every peer variant of a package
	DisableDedupeInjectedDeps     bool // Keep injected workspace projects as file: packages

	PeersSuffixMaxLength int  // Longest verbatim peer suffix (default: 1000)
	NetworkConcurrency   int  // Concurrent source requests per sibling group (default: 16)
	MaxDepth             int  // Maximum tree depth, 0 for unlimited
	SkipFetch            bool // Resolve metadata only; never fetch package contents
	Update               bool // Ignore locked versions

	Logger *log.Logger // Structured logger (default: discard)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.PeersSuffixMaxLength <= 0 {
		opts.PeersSuffixMaxLength = DefaultPeersSuffixMaxLength
	}
	if opts.NetworkConcurrency <= 0 {
		opts.NetworkConcurrency = DefaultNetworkConcurrency
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}
