// Package resolve turns the wanted dependencies of workspace projects into a
// dependency graph with every peer dependency decided.
//
// # Overview
//
// [ResolveDependencyTree] runs two passes:
//
//  1. Tree building: every wanted dependency is resolved through a
//     [source.Source]. Sibling requests run concurrently and are applied in
//     declaration order. A package id is resolved once per run; later
//     occurrences reuse it and build their subtree lazily.
//  2. Peer resolution: the tree is walked once per project. Each node looks
//     its peer dependencies up among its ancestors and their children and
//     gets a [DepPath]: the package id plus a suffix naming the resolved
//     peers, e.g. ui@1.0.0(react@18.2.0). Equivalent resolutions are
//     cached, and peers that depend on each other are cut with
//     name@version placeholders.
//
// The resulting [Graph] is then deduplicated, pruned to what the projects
// reach and made acyclic. [Result.Lockfile] projects it onto a lockfile.
//
// # Usage
//
//	reg := memory.New().
//	    Add(&manifest.Manifest{Name: "react", Version: "18.2.0"}).
//	    Add(&manifest.Manifest{Name: "ui", Version: "1.0.0", PeerDependencies: map[string]string{"react": "^18.0.0"}})
//
//	res, err := resolve.ResolveDependencyTree(ctx, []*resolve.Project{{
//	    ID:       ".",
//	    Manifest: &manifest.Manifest{Name: "app", Dependencies: map[string]string{"react": "^18", "ui": "^1"}},
//	}}, resolve.Options{Source: reg})
//
//	res.DependenciesByProjectID["."]["ui"] // "ui@1.0.0(react@18.2.0)"
//
// # Peer dependency issues
//
// Missing and mismatched peers never fail a run by themselves. They are
// collected per project in [Result.PeerDependencyIssuesByProjects];
// [Options.StrictPeerDependencies] additionally returns an error coded
// errors.ErrCodePeerDependencyIssues alongside the result.
//
// # Concurrency
//
// A run owns its state; concurrent runs share nothing but the source.
//
// [source.Source]: github.com/matzehuels/stackresolve/pkg/source.Source
package resolve
