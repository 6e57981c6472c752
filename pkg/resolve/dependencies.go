package resolve

import (
	"context"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackresolve/pkg/catalog"
	"github.com/matzehuels/stackresolve/pkg/deppath"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/observability"
	"github.com/matzehuels/stackresolve/pkg/source"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// parentPkg describes the dependent of a group of siblings: a project at
// the root, a package below it.
type parentPkg struct {
	pkgID       string
	nodeID      NodeID
	optional    bool
	dev         bool
	installable bool
	parentIDs   []string // Ancestor ids, ending with pkgID

	project  *Project
	importer *lockfile.Importer        // Locked direct deps (root only)
	snapshot *lockfile.PackageSnapshot // Locked children (packages only)

	scope map[string]bool // Aliases visible to the siblings' peers
}

func (p parentPkg) ancestors() []string {
	if len(p.parentIDs) <= 1 {
		return nil
	}
	return p.parentIDs[1:]
}

type request struct {
	wanted   manifest.WantedDependency
	spec     string // Original specifier
	catalog  *catalog.Result
	current  *source.CurrentPkg
	snapshot *lockfile.PackageSnapshot
	optional bool
}

type response struct {
	res *source.Response
	err error
}

// resolveDependencies resolves one group of siblings, then the children of
// every sibling seen for the first time. Source requests of the group run
// concurrently; their responses are applied in declaration order.
func (rc *resolutionContext) resolveDependencies(ctx context.Context, wanted []manifest.WantedDependency, parent parentPkg, depth int) ([]Dependency, error) {
	reqs := make([]request, 0, len(wanted))
	for _, w := range wanted {
		req, err := rc.prepareRequest(w, parent)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}

	responses := rc.requestAll(ctx, reqs, parent)

	scope := make(map[string]bool, len(parent.scope)+len(reqs))
	for alias := range parent.scope {
		scope[alias] = true
	}
	for _, req := range reqs {
		scope[req.wanted.Alias] = true
	}

	var (
		deps   []Dependency
		expand []*PkgAddress
		snaps  = make(map[*PkgAddress]*lockfile.PackageSnapshot)
	)
	for i, req := range reqs {
		dep, err := rc.applyResponse(ctx, req, responses[i], parent, depth, scope)
		if err != nil {
			return nil, err
		}
		if dep == nil {
			continue
		}
		deps = append(deps, dep)
		if addr, ok := dep.(*PkgAddress); ok && addr.IsNew && !addr.Package.Manifest.IsLeaf() {
			expand = append(expand, addr)
			snaps[addr] = req.snapshot
		}
	}

	for _, addr := range expand {
		if err := rc.resolveChildren(ctx, addr, parent, depth, scope, snaps[addr]); err != nil {
			return nil, err
		}
	}
	return deps, nil
}

func (rc *resolutionContext) prepareRequest(w manifest.WantedDependency, parent parentPkg) (request, error) {
	req := request{wanted: w, spec: w.Spec, optional: w.Optional || parent.optional}

	if catalog.IsCatalogSpec(w.Spec) {
		res, err := catalog.Resolve(rc.opts.Catalogs, w.Alias, w.Spec)
		if err != nil {
			return req, err
		}
		req.catalog = &res
		req.wanted.Spec = res.Specifier
	}
	if !rc.opts.Update {
		req.current, req.snapshot = rc.lockedPackage(req, parent)
	}
	return req, nil
}

// lockedPackage finds a locked package the source may reuse for req.
func (rc *resolutionContext) lockedPackage(req request, parent parentPkg) (*source.CurrentPkg, *lockfile.PackageSnapshot) {
	lf := rc.opts.Lockfile
	if lf == nil {
		return nil, nil
	}
	alias, spec := req.wanted.Alias, req.wanted.Spec

	var ref string
	switch {
	case parent.importer != nil:
		entry, ok := parent.importer.Entry(alias)
		if !ok {
			return nil, nil
		}
		if req.catalog != nil {
			locked, ok := lf.Catalogs[req.catalog.CatalogName][alias]
			if !ok || locked.Specifier != req.catalog.Specifier {
				return nil, nil
			}
		} else if entry.Specifier != spec && !version.Satisfies(refVersion(entry.Version, alias), spec) {
			return nil, nil
		}
		ref = entry.Version
	case parent.snapshot != nil:
		r, ok := parent.snapshot.Ref(alias)
		if !ok || !version.Satisfies(refVersion(r, alias), spec) {
			return nil, nil
		}
		ref = r
	default:
		return nil, nil
	}
	if isLinkID(ref) || strings.HasPrefix(ref, "file:") {
		return nil, nil
	}

	depPath := deppath.FromRef(ref, alias)
	parsed, ok := deppath.Parse(depPath)
	if !ok {
		return nil, nil
	}
	snapshot := lf.Packages[depPath]
	cur := &source.CurrentPkg{
		ID:      parsed.Name + "@" + parsed.Version,
		Name:    parsed.Name,
		Version: parsed.Version,
	}
	if snapshot != nil {
		cur.Resolution = snapshot.Resolution
	}
	return cur, snapshot
}

func refVersion(ref, alias string) string {
	p, ok := deppath.Parse(deppath.FromRef(ref, alias))
	if !ok {
		return ref
	}
	return p.Version
}

func (rc *resolutionContext) requestAll(ctx context.Context, reqs []request, parent parentPkg) []response {
	out := make([]response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.opts.NetworkConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := rc.opts.Source.Request(gctx, req.wanted, source.RequestOptions{
				ProjectDir:  parent.project.Dir,
				LockfileDir: rc.opts.LockfileDir,
				CurrentPkg:  req.current,
				SkipFetch:   rc.opts.SkipFetch,
				Update:      rc.opts.Update,
			})
			out[i] = response{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// applyResponse records one sibling. It returns nil when the dependency is
// skipped: an optional failure or a cycle.
func (rc *resolutionContext) applyResponse(ctx context.Context, req request, resp response, parent parentPkg, depth int, scope map[string]bool) (Dependency, error) {
	w := req.wanted
	if resp.err != nil {
		if req.optional {
			rc.skipOptional(ctx, req, parent, resp.err)
			return nil, nil
		}
		return nil, newResolutionError(w.Alias, req.spec, parent.ancestors(), parent.project.Dir, resp.err)
	}
	res := resp.res
	errors.Invariant(res != nil, "source returned no response for %s", w)
	if res.Manifest == nil || res.Manifest.Name == "" {
		return nil, errors.New(errors.ErrCodeMissingPackageName, "package %s resolved from %s has no name", res.ID, w)
	}

	if req.catalog != nil {
		rc.recordCatalog(req, res)
	}

	if res.IsLocal {
		linked := &LinkedDependency{
			Alias:      w.Alias,
			Name:       res.Manifest.Name,
			Version:    res.Manifest.Version,
			PkgID:      res.ID,
			Dir:        res.LocalDir,
			Spec:       req.spec,
			Dev:        w.Dev,
			Optional:   w.Optional,
			Resolution: res.Resolution,
		}
		return linked, nil
	}

	if isCyclic(parent.parentIDs, parent.pkgID, res.ID) {
		return nil, nil
	}

	optional := req.optional
	dev := w.Dev || parent.dev
	installable := parent.installable
	if res.Unsupported != "" {
		if optional {
			installable = false
			rc.wantedToBeSkipped[res.ID] = true
			rc.log.Info("skipping unsupported optional package", "pkg", res.ID, "reason", res.Unsupported)
		} else {
			rc.log.Warn("unsupported package", "pkg", res.ID, "reason", res.Unsupported)
		}
	} else if !optional && rc.wantedToBeSkipped[res.ID] {
		delete(rc.wantedToBeSkipped, res.ID)
	}

	pkg, isNew := rc.resolvedPkgsByID[res.ID], false
	if pkg == nil {
		isNew = true
		pkg = rc.newResolvedPackage(res, dev, optional, installable)
		rc.resolvedPkgsByID[res.ID] = pkg
		for name := range pkg.PeerDependencies {
			rc.allPeerDepNames[name] = true
		}
		if installable {
			rc.fetches.start(ctx, res.ID, res.Fetch, optional)
		}
	} else {
		pkg.Prod = pkg.Prod || (!dev && !optional)
		pkg.Dev = pkg.Dev || dev
		pkg.Optional = pkg.Optional && optional
		pkg.Installable = pkg.Installable || installable
	}

	leaf := pkg.Manifest.IsLeaf()
	nodeID := rc.nextNodeIDFor(pkg, leaf)
	addr := &PkgAddress{
		Alias:            w.Alias,
		NodeID:           nodeID,
		PkgID:            res.ID,
		IsNew:            isNew,
		Spec:             req.spec,
		NormalizedSpec:   normalizedSpec(req.wanted, res),
		Dev:              w.Dev,
		Optional:         w.Optional,
		Installable:      installable,
		PeerDependencies: pkg.PeerDependencies,
		MissingPeers:     rc.missingPeers(pkg, scope),
		Package:          pkg,
	}

	switch {
	case leaf:
		if n, ok := rc.tree[nodeID]; ok {
			n.depth = min(n.depth, depth)
		} else {
			rc.tree[nodeID] = &treeNode{children: resolvedChildren(nil), depth: depth, installable: installable, pkg: pkg}
		}
	case !isNew:
		rc.pendingNodes = append(rc.pendingNodes, pendingNode{
			nodeID:      nodeID,
			pkg:         pkg,
			depth:       depth,
			installable: installable,
			parentIDs:   appendID(parent.parentIDs, res.ID),
		})
	}
	return addr, nil
}

func (rc *resolutionContext) nextNodeIDFor(pkg *ResolvedPackage, leaf bool) NodeID {
	if leaf {
		return NodeID(pkg.ID)
	}
	return rc.nextNodeID()
}

// resolveChildren resolves the dependencies of a package seen for the first
// time and records its tree node.
func (rc *resolutionContext) resolveChildren(ctx context.Context, addr *PkgAddress, parent parentPkg, depth int, scope map[string]bool, snapshot *lockfile.PackageSnapshot) error {
	pkg := addr.Package
	children := map[string]NodeID{}
	if rc.opts.MaxDepth == 0 || depth+1 <= rc.opts.MaxDepth {
		wanted := manifest.WantedDependencies(pkg.Manifest, manifest.WantedOptions{})
		deps, err := rc.resolveDependencies(ctx, wanted, parentPkg{
			pkgID:       pkg.ID,
			nodeID:      addr.NodeID,
			optional:    addr.Optional || parent.optional,
			dev:         parent.dev || addr.Dev,
			installable: addr.Installable,
			parentIDs:   appendID(parent.parentIDs, pkg.ID),
			project:     parent.project,
			snapshot:    snapshot,
			scope:       scope,
		}, depth+1)
		if err != nil {
			return err
		}

		refs := make([]childRef, 0, len(deps))
		missing := map[string]MissingPeer{}
		for _, dep := range deps {
			switch d := dep.(type) {
			case *PkgAddress:
				children[d.Alias] = d.NodeID
				refs = append(refs, childRef{alias: d.Alias, id: d.PkgID})
				for name, mp := range d.MissingPeers {
					missing[name] = mp
				}
			case *LinkedDependency:
				children[d.Alias] = NodeID(d.PkgID)
				refs = append(refs, childRef{alias: d.Alias, id: d.PkgID})
			}
		}
		rc.childrenByParentID[pkg.ID] = refs
		rc.missingPeersByID[pkg.ID] = missing
		for name, mp := range missing {
			if !scope[name] {
				addr.MissingPeers[name] = mp
			}
		}
	}
	rc.tree[addr.NodeID] = &treeNode{
		children:    resolvedChildren(children),
		depth:       depth,
		installable: addr.Installable,
		pkg:         pkg,
	}
	return nil
}

// missingPeers lists the peers of pkg, and of its already resolved
// subtree, that nothing in scope provides.
func (rc *resolutionContext) missingPeers(pkg *ResolvedPackage, scope map[string]bool) map[string]MissingPeer {
	missing := make(map[string]MissingPeer)
	for name, peer := range pkg.PeerDependencies {
		if !scope[name] && name != pkg.Name {
			missing[name] = MissingPeer{Range: peer.Version, Optional: peer.Optional}
		}
	}
	for name, mp := range rc.missingPeersByID[pkg.ID] {
		if _, ok := missing[name]; !ok && !scope[name] {
			missing[name] = mp
		}
	}
	return missing
}

func (rc *resolutionContext) newResolvedPackage(res *source.Response, dev, optional, installable bool) *ResolvedPackage {
	m := res.Manifest
	pkg := &ResolvedPackage{
		ID:                 res.ID,
		PkgIDWithPatchHash: res.ID,
		Name:               m.Name,
		Version:            m.Version,
		Manifest:           m,
		PeerDependencies:   peerDependencies(m),
		Resolution:         res.Resolution,
		Prod:               !dev && !optional,
		Dev:                dev,
		Optional:           optional,
		Installable:        installable,
	}
	if len(m.OptionalDependencies) > 0 {
		pkg.OptionalDependencies = make(map[string]bool, len(m.OptionalDependencies))
		for alias := range m.OptionalDependencies {
			pkg.OptionalDependencies[alias] = true
		}
	}
	if key, patch, ok := rc.findPatch(m.Name, m.Version); ok {
		rc.appliedPatches[key] = true
		pkg.Patch = &patch
		pkg.PkgIDWithPatchHash = deppath.WithPatchHash(res.ID, patch.Hash)
	}
	return pkg
}

// findPatch looks a package up in PatchedDependencies: exact version first,
// then ranges in key order, then the bare name.
func (rc *resolutionContext) findPatch(name, v string) (string, Patch, bool) {
	patches := rc.opts.PatchedDependencies
	if len(patches) == 0 {
		return "", Patch{}, false
	}
	if p, ok := patches[name+"@"+v]; ok {
		return name + "@" + v, p, true
	}
	for _, key := range sortedPatchKeys(patches) {
		at := strings.LastIndexByte(key, '@')
		if at <= 0 || key[:at] != name {
			continue
		}
		if rng := key[at+1:]; !version.Valid(rng) && version.Satisfies(v, rng) {
			return key, patches[key], true
		}
	}
	if p, ok := patches[name]; ok {
		return name, p, true
	}
	return "", Patch{}, false
}

func sortedPatchKeys(patches map[string]Patch) []string {
	return slices.Sorted(maps.Keys(patches))
}

func (rc *resolutionContext) unusedPatches() []string {
	var unused []string
	for _, key := range sortedPatchKeys(rc.opts.PatchedDependencies) {
		if !rc.appliedPatches[key] {
			unused = append(unused, key)
		}
	}
	return unused
}

func (rc *resolutionContext) skipOptional(ctx context.Context, req request, parent parentPkg, err error) {
	parents := parent.ancestors()
	rc.skippedOptional = append(rc.skippedOptional, SkippedOptional{
		Alias:   req.wanted.Alias,
		Spec:    req.spec,
		Parents: parents,
		Reason:  errors.UserMessage(err),
	})
	rc.log.Warn("skipping optional dependency", "pkg", req.wanted.String(), "parents", strings.Join(parents, " > "), "reason", err)
	observability.Resolve().OnOptionalSkipped(ctx, rc.runID, req.wanted.Alias, err)
}

func (rc *resolutionContext) recordCatalog(req request, res *source.Response) {
	name := req.catalog.CatalogName
	if rc.catalogsUsed[name] == nil {
		rc.catalogsUsed[name] = make(map[string]lockfile.ResolvedEntry)
	}
	rc.catalogsUsed[name][req.wanted.Alias] = lockfile.ResolvedEntry{
		Specifier: req.catalog.Specifier,
		Version:   res.Manifest.Version,
	}
}

// normalizedSpec is the specifier written back for "latest" and empty
// specifiers, following the wanted pin mode.
func normalizedSpec(w manifest.WantedDependency, res *source.Response) string {
	spec := strings.TrimSpace(w.Spec)
	if spec != "" && spec != "latest" {
		return ""
	}
	pin := w.PinnedVersion
	if pin == "" {
		pin = version.PinMajor
	}
	return version.PinnedSpec(res.Manifest.Version, pin)
}
