package resolve

import (
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/source"
)

// NodeID identifies a position in the dependency tree. Sequential ids look
// like ">12>"; leaf packages use their package id; linked directories use
// "link:<dir>".
type NodeID string

// DepPath is the final identity of a resolved node: the package id with an
// optional patch hash and peer suffix.
type DepPath string

// Project is one workspace project to resolve.
type Project struct {
	ID       string             // Path relative to the lockfile dir, "." for the root
	Dir      string             // Absolute directory
	Manifest *manifest.Manifest // Loaded manifest

	// Wanted overrides the dependencies derived from Manifest.
	Wanted []manifest.WantedDependency

	// TopParents are packages the project already provides without
	// resolving them again. They satisfy peers of the project's dependencies.
	TopParents []TopParent
}

// TopParent is an already-installed direct dependency of a project.
type TopParent struct {
	Name      string
	Version   string
	Alias     string
	LinkedDir string // Set for directory links, relative to the lockfile dir
}

// PeerDependency is a declared peer dependency.
type PeerDependency struct {
	Version  string // Wanted range
	Optional bool
}

// ResolvedPackage is the single record kept per package id for a run.
type ResolvedPackage struct {
	ID                   string
	PkgIDWithPatchHash   string
	Name                 string
	Version              string
	Manifest             *manifest.Manifest
	PeerDependencies     map[string]PeerDependency
	OptionalDependencies map[string]bool
	Resolution           source.Resolution
	Patch                *Patch
	Prod                 bool
	Dev                  bool
	Optional             bool
	Installable          bool
}

// HasPeers reports whether the package declares any peer dependency.
func (p *ResolvedPackage) HasPeers() bool { return len(p.PeerDependencies) > 0 }

func peerDependencies(m *manifest.Manifest) map[string]PeerDependency {
	if len(m.PeerDependencies) == 0 && len(m.PeerDependenciesMeta) == 0 {
		return nil
	}
	peers := make(map[string]PeerDependency, len(m.PeerDependencies))
	for name, rng := range m.PeerDependencies {
		peers[name] = PeerDependency{Version: rng, Optional: m.PeerDependenciesMeta[name].Optional}
	}
	// Optional peers may be declared in peerDependenciesMeta only.
	for name, meta := range m.PeerDependenciesMeta {
		if _, ok := peers[name]; !ok && meta.Optional {
			peers[name] = PeerDependency{Version: "*", Optional: true}
		}
	}
	return peers
}

// MissingPeer is a peer dependency nobody in scope provides.
type MissingPeer struct {
	Range    string
	Optional bool
}

// Dependency is a resolved direct dependency of a project: a *PkgAddress or
// a *LinkedDependency.
type Dependency interface {
	DependencyAlias() string
}

// PkgAddress is the result of resolving one wanted dependency at one tree position.
type PkgAddress struct {
	Alias            string
	NodeID           NodeID
	PkgID            string
	IsNew            bool
	Spec             string // Specifier as written, e.g. "catalog:"
	NormalizedSpec   string // Specifier to write back for "latest" and empty specs
	Dev              bool
	Optional         bool
	Installable      bool
	PeerDependencies map[string]PeerDependency
	MissingPeers     map[string]MissingPeer
	Package          *ResolvedPackage
}

// DependencyAlias implements Dependency.
func (a *PkgAddress) DependencyAlias() string { return a.Alias }

// LinkedDependency is a dependency on a directory that is linked, not installed.
type LinkedDependency struct {
	Alias      string
	Name       string
	Version    string
	PkgID      string // "link:<dir relative to the project>"
	Dir        string // Absolute directory
	Spec       string
	Dev        bool
	Optional   bool
	Resolution source.Resolution
}

// DependencyAlias implements Dependency.
func (l *LinkedDependency) DependencyAlias() string { return l.Alias }

// SkippedOptional records an optional dependency that failed to resolve.
type SkippedOptional struct {
	Alias   string
	Spec    string
	Parents []string
	Reason  string
}

// Stats summarizes a run.
type Stats struct {
	Packages   int // Distinct package ids
	TreeNodes  int // Nodes in the raw tree
	DepPaths   int // Nodes in the final graph
	CacheHits  int // Peer cache hits
	Pure       int // Packages whose identity never depends on peers
	Duplicates int // Dep paths removed by peer-dependent dedup
}
