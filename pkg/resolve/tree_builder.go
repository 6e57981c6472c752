package resolve

import (
	"cmp"
	"context"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/observability"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// ResolveDependencyTree resolves the dependencies of every project and
// assigns each resolved package its final DepPath.
//
// Resolution happens in two passes. The first walks the wanted
// dependencies of each project against opts.Source and builds a tree of
// package nodes; packages already seen elsewhere are reused and their
// subtrees built lazily. The second walks that tree once per project,
// resolving peer dependencies from the ancestors of each node, and
// produces a graph keyed by DepPath. Equivalent peer variants and
// injected projects are then deduplicated.
//
// Peer dependency problems are reported in
// Result.PeerDependencyIssuesByProjects. With opts.StrictPeerDependencies
// they also produce an error, returned together with the result.
//
// Fetches started during resolution keep running after this returns; use
// Result.WaitTillAllFetchingsFinish to wait for them.
func ResolveDependencyTree(ctx context.Context, projects []*Project, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if opts.Source == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no package source configured")
	}
	projects, err := normalizeProjects(projects, opts.LockfileDir)
	if err != nil {
		return nil, err
	}

	rc := newResolutionContext(opts)

	start := time.Now()
	observability.Resolve().OnTreeStart(ctx, rc.runID, len(projects))
	err = rc.buildDependencyTree(ctx, projects)
	observability.Resolve().OnTreeComplete(ctx, rc.runID, len(rc.resolvedPkgsByID), time.Since(start), err)
	if err != nil {
		if werr := rc.fetches.wait(context.WithoutCancel(ctx)); werr != nil {
			rc.log.Debug("fetch failed after resolution error", "err", werr)
		}
		return nil, err
	}

	start = time.Now()
	observability.Resolve().OnPeersStart(ctx, rc.runID, len(rc.tree))
	res := rc.resolvePeersAndDedupe()
	observability.Resolve().OnPeersComplete(ctx, rc.runID, len(res.Graph), time.Since(start), nil)

	rc.log.Info("resolved dependencies",
		"projects", len(projects),
		"packages", res.Stats.Packages,
		"depPaths", res.Stats.DepPaths,
		"duplicates", res.Stats.Duplicates,
	)

	if opts.StrictPeerDependencies {
		if err := strictError(res.PeerDependencyIssuesByProjects); err != nil {
			return res, err
		}
	}
	return res, nil
}

// normalizeProjects validates projects, fills in directories and sorts
// them by id.
func normalizeProjects(projects []*Project, lockfileDir string) ([]*Project, error) {
	seen := make(map[string]bool, len(projects))
	out := make([]*Project, 0, len(projects))
	for _, p := range projects {
		if p == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "nil project")
		}
		if p.Manifest == nil && p.Wanted == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "project %q has neither a manifest nor wanted dependencies", p.ID)
		}
		cp := *p
		if cp.ID == "" {
			cp.ID = "."
		}
		if seen[cp.ID] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate project %q", cp.ID)
		}
		seen[cp.ID] = true
		if cp.Dir == "" {
			cp.Dir = filepath.Join(lockfileDir, filepath.FromSlash(cp.ID))
		}
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Project) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (rc *resolutionContext) buildDependencyTree(ctx context.Context, projects []*Project) error {
	for _, p := range projects {
		if err := rc.resolveProject(ctx, p); err != nil {
			return err
		}
	}

	for _, pn := range rc.pendingNodes {
		rc.tree[pn.nodeID] = &treeNode{
			children: deferredChildren(func() map[string]NodeID {
				return rc.buildTree(pn.pkg.ID, pn.parentIDs, rc.childrenByParentID[pn.pkg.ID], pn.depth+1, pn.installable)
			}),
			depth:       pn.depth,
			installable: pn.installable,
			pkg:         pn.pkg,
		}
	}

	if unused := rc.unusedPatches(); len(unused) > 0 {
		if !rc.opts.AllowUnusedPatches {
			return errors.New(errors.ErrCodePatchNotApplied, "the following patches were not applied: %v", unused)
		}
		rc.log.Warn("patches were not applied", "patches", unused)
	}
	return nil
}

func (rc *resolutionContext) resolveProject(ctx context.Context, p *Project) error {
	wanted := p.Wanted
	if wanted == nil {
		wanted = manifest.WantedDependencies(p.Manifest, manifest.WantedOptions{IncludeDev: true})
	}

	scope := make(map[string]bool, len(p.TopParents))
	for _, tp := range p.TopParents {
		scope[tp.Name] = true
		if tp.Alias != "" {
			scope[tp.Alias] = true
		}
	}
	root := parentPkg{
		pkgID:       p.ID,
		nodeID:      NodeID(">" + p.ID + ">"),
		installable: true,
		parentIDs:   []string{p.ID},
		project:     p,
		scope:       scope,
	}
	if lf := rc.opts.Lockfile; lf != nil {
		root.importer = lf.Importers[p.ID]
	}

	deps, err := rc.resolveDependencies(ctx, wanted, root, 0)
	if err != nil {
		return err
	}
	for _, w := range wanted {
		scope[w.Alias] = true
	}

	if rc.opts.AutoInstallPeers {
		attempted := make(map[string]bool)
		for {
			peers := rc.peersToInstall(deps, scope, attempted)
			if len(peers) == 0 {
				break
			}
			more, err := rc.resolveDependencies(ctx, peers, root, 0)
			if err != nil {
				return err
			}
			for _, w := range peers {
				scope[w.Alias] = true
			}
			deps = append(deps, more...)
		}
	}

	imp := &resolvedImporter{
		project:            p,
		directDependencies: deps,
		directNodeIDs:      make(map[string]NodeID, len(deps)),
	}
	for _, dep := range deps {
		switch d := dep.(type) {
		case *PkgAddress:
			imp.directNodeIDs[d.Alias] = d.NodeID
		case *LinkedDependency:
			imp.linked = append(imp.linked, d)
		}
	}
	rc.importers[p.ID] = imp
	return nil
}

// peersToInstall turns the required missing peers of a project's direct
// dependencies into wanted dependencies, one per peer name, using the
// intersection of the wanted ranges. Names are attempted once.
func (rc *resolutionContext) peersToInstall(deps []Dependency, scope, attempted map[string]bool) []manifest.WantedDependency {
	ranges := make(map[string][]string)
	for _, dep := range deps {
		addr, ok := dep.(*PkgAddress)
		if !ok {
			continue
		}
		for name, mp := range addr.MissingPeers {
			if mp.Optional || scope[name] || attempted[name] {
				continue
			}
			ranges[name] = append(ranges[name], version.StripWorkspace(mp.Range))
		}
	}

	var wanted []manifest.WantedDependency
	for _, name := range slices.Sorted(maps.Keys(ranges)) {
		attempted[name] = true
		rng, ok := version.Intersect(ranges[name])
		if !ok {
			rc.log.Warn("cannot auto-install peer with conflicting ranges", "peer", name, "ranges", ranges[name])
			continue
		}
		wanted = append(wanted, manifest.WantedDependency{
			Alias:         name,
			Spec:          rng,
			PinnedVersion: manifest.GuessPin(rng),
		})
	}
	return wanted
}

// resolvePeersAndDedupe runs the peer pass over the finished tree and
// builds the Result.
func (rc *resolutionContext) resolvePeersAndDedupe() *Result {
	pr := newPeerResolver(rc)
	peers := pr.resolvePeers()
	g, deps := peers.graph, peers.dependenciesByProjectID

	duplicates := 0
	if !rc.opts.DisableDedupePeerDependents {
		duplicates = dedupePeerDependents(g, deps)
	}
	if !rc.opts.DisableDedupeInjectedDeps {
		rc.dedupeInjectedDeps(g, deps)
	}
	g.prune(deps)
	broken := g.breakCycles(deps)

	linked := make(map[string][]*LinkedDependency, len(rc.importers))
	for id, imp := range rc.importers {
		if len(imp.linked) > 0 {
			linked[id] = slices.Clone(imp.linked)
			slices.SortFunc(linked[id], func(a, b *LinkedDependency) int { return cmp.Compare(a.Alias, b.Alias) })
		}
	}

	return &Result{
		Graph:                          g,
		DependenciesByProjectID:        deps,
		LinkedDependenciesByProjectID:  linked,
		PeerDependencyIssuesByProjects: peers.peerDependencyIssuesByProjects,
		WantedToBeSkippedPackageIDs:    slices.Sorted(maps.Keys(rc.wantedToBeSkipped)),
		SkippedOptional:                rc.skippedOptional,
		BrokenEdges:                    broken,
		RunID:                          rc.runID,
		Stats: Stats{
			Packages:   len(rc.resolvedPkgsByID),
			TreeNodes:  len(rc.tree),
			DepPaths:   len(g),
			CacheHits:  pr.cacheHits,
			Pure:       len(pr.purePkgs),
			Duplicates: duplicates,
		},
		importers: rc.importers,
		catalogs:  rc.catalogsUsed,
		fetches:   rc.fetches,
	}
}
