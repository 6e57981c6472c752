package resolve

import (
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/stackresolve/pkg/dag"
	"github.com/matzehuels/stackresolve/pkg/dag/transform"
	"github.com/matzehuels/stackresolve/pkg/deppath"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/source"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// parentRef is the package that provides a name to the nodes below it.
type parentRef struct {
	alias         string
	version       string
	depth         int
	nodeID        NodeID // Empty for top parents that are not in the tree
	occurrence    int    // How many providers of the name it shadows
	parentNodeIDs []NodeID
}

// parentRefs maps a package name or alias to its provider.
type parentRefs map[string]*parentRef

// update adds ref under name. An existing entry wins unless it was only
// registered through a different alias, or ref is a higher version
// registered through an alias as well.
func (refs parentRefs) update(name string, ref *parentRef) {
	if existing, ok := refs[name]; ok {
		if existing.alias == "" || existing.alias == name {
			return
		}
		if ref.alias != "" && ref.alias != name && version.Compare(existing.version, ref.version) >= 0 {
			return
		}
	}
	refs[name] = ref
}

type peerResolver struct {
	rc        *resolutionContext
	sched     *scheduler
	maxLength int

	graph           Graph
	pathsByNodeID   map[NodeID]DepPath
	nodeFutures     map[NodeID]*future
	depPathsByPkgID map[string]map[DepPath]bool
	peersCache      map[string][]*peersCacheItem
	purePkgs        map[string]bool
	calcs           []*pendingCalc
	cacheHits       int
}

func newPeerResolver(rc *resolutionContext) *peerResolver {
	return &peerResolver{
		rc:              rc,
		sched:           &scheduler{},
		maxLength:       rc.opts.PeersSuffixMaxLength,
		graph:           make(Graph),
		pathsByNodeID:   make(map[NodeID]DepPath),
		nodeFutures:     make(map[NodeID]*future),
		depPathsByPkgID: make(map[string]map[DepPath]bool),
		peersCache:      make(map[string][]*peersCacheItem),
		purePkgs:        make(map[string]bool),
	}
}

func (pr *peerResolver) newFuture() *future { return &future{sched: pr.sched} }

func (pr *peerResolver) nodeFuture(id NodeID) *future {
	f, ok := pr.nodeFutures[id]
	if !ok {
		f = pr.newFuture()
		pr.nodeFutures[id] = f
	}
	return f
}

func (pr *peerResolver) setPath(id NodeID, dp DepPath) {
	pr.pathsByNodeID[id] = dp
	pr.nodeFuture(id).resolve(dp)
}

// peerCtx is the per-branch traversal state.
type peerCtx struct {
	issues        *PeerDependencyIssues
	parentNodeIDs []NodeID
}

type nodeResult struct {
	resolvedPeers map[string]NodeID
	missingPeers  map[string]MissingPeer
	calc          *pendingCalc
}

type peersResult struct {
	graph                          Graph
	dependenciesByProjectID        map[string]map[string]DepPath
	peerDependencyIssuesByProjects map[string]*PeerDependencyIssues
}

// resolvePeers assigns a DepPath to every node of the tree.
func (pr *peerResolver) resolvePeers() *peersResult {
	ids := slices.Sorted(maps.Keys(pr.rc.importers))

	var rootRefs parentRefs
	if pr.rc.opts.ResolvePeersFromWorkspaceRoot {
		if root, ok := pr.rc.importers["."]; ok {
			rootRefs = pr.projectRefs(root)
		}
	}

	issuesByProject := make(map[string]*PeerDependencyIssues)
	for _, id := range ids {
		imp := pr.rc.importers[id]
		scope := parentRefs{}
		for name, ref := range rootRefs {
			scope[name] = ref
		}
		for name, ref := range pr.projectRefs(imp) {
			scope[name] = ref
		}

		issues := newPeerDependencyIssues()
		pr.resolvePeersOfChildren(imp.directNodeIDs, scope, peerCtx{issues: issues})
		pr.sched.drain()
		if !issues.Empty() {
			issues.mergeMissing()
			issuesByProject[id] = issues
		}
	}
	pr.settle()

	for _, n := range pr.graph {
		n.Children = make(map[string]DepPath, len(n.childNodes))
		for alias, id := range n.childNodes {
			if dp, ok := pr.pathsByNodeID[id]; ok {
				n.Children[alias] = dp
			} else {
				n.Children[alias] = DepPath(id)
			}
		}
	}

	depsByProject := make(map[string]map[string]DepPath, len(ids))
	for _, id := range ids {
		deps := make(map[string]DepPath)
		for alias, nodeID := range pr.rc.importers[id].directNodeIDs {
			dp, ok := pr.pathsByNodeID[nodeID]
			errors.Invariant(ok, "direct dependency %s of %s has no dep path", alias, id)
			deps[alias] = dp
		}
		depsByProject[id] = deps
	}

	return &peersResult{
		graph:                          pr.graph,
		dependenciesByProjectID:        depsByProject,
		peerDependencyIssuesByProjects: issuesByProject,
	}
}

// projectRefs builds the scope of a project's direct dependencies: the
// dependencies themselves plus top parents and linked directories.
func (pr *peerResolver) projectRefs(imp *resolvedImporter) parentRefs {
	refs := pr.toPkgByName(imp.directNodeIDs, nil)
	tops := slices.Clone(imp.project.TopParents)
	for _, l := range imp.linked {
		tops = append(tops, TopParent{
			Name:      l.Name,
			Version:   l.Version,
			Alias:     l.Alias,
			LinkedDir: source.RelSlash(pr.rc.opts.LockfileDir, l.Dir),
		})
	}
	for _, tp := range tops {
		ref := &parentRef{alias: tp.Alias, version: tp.Version}
		if tp.LinkedDir != "" {
			ref.nodeID = NodeID("link:" + tp.LinkedDir)
		}
		refs.update(tp.Name, ref)
		if tp.Alias != "" && tp.Alias != tp.Name {
			refs.update(tp.Alias, ref)
		}
	}
	return refs
}

func (pr *peerResolver) toPkgByName(children map[string]NodeID, parentNodeIDs []NodeID) parentRefs {
	refs := parentRefs{}
	for _, alias := range slices.Sorted(maps.Keys(children)) {
		id := children[alias]
		n, ok := pr.rc.tree[id]
		if !ok {
			continue
		}
		ref := &parentRef{alias: alias, version: n.pkg.Version, depth: n.depth, nodeID: id, parentNodeIDs: parentNodeIDs}
		refs.update(alias, ref)
		if alias != n.pkg.Name {
			refs.update(n.pkg.Name, ref)
		}
	}
	return refs
}

// sameProvider reports whether two providers yield the same peer: the
// same node, or the same package that has no peers of its own.
func (pr *peerResolver) sameProvider(a, b *parentRef) bool {
	if a.nodeID == b.nodeID {
		return true
	}
	na, okA := pr.rc.tree[a.nodeID]
	nb, okB := pr.rc.tree[b.nodeID]
	if !okA || !okB {
		return false
	}
	return na.pkg.PkgIDWithPatchHash == nb.pkg.PkgIDWithPatchHash && !na.pkg.HasPeers()
}

// resolvePeersOfChildren resolves a sibling group. Children not already
// provided by the scope go first. It returns the peers resolved below the
// group that none of the siblings provides, and every missing peer.
func (pr *peerResolver) resolvePeersOfChildren(children map[string]NodeID, scope parentRefs, pc peerCtx) (map[string]NodeID, map[string]MissingPeer) {
	var fresh, repeated []string
	for _, alias := range slices.Sorted(maps.Keys(children)) {
		if scope[alias] != nil {
			repeated = append(repeated, alias)
		} else {
			fresh = append(fresh, alias)
		}
	}

	allResolved := make(map[string]NodeID)
	allMissing := make(map[string]MissingPeer)
	peerGraph := dag.New(nil)
	var calcs []*pendingCalc

	for _, alias := range append(fresh, repeated...) {
		id := children[alias]
		if _, ok := pr.rc.tree[id]; !ok {
			continue
		}
		r := pr.resolvePeersOfNode(alias, id, scope, pc)
		if r.calc != nil {
			calcs = append(calcs, r.calc)
		}
		peerGraph.EnsureNode(alias)
		for _, name := range slices.Sorted(maps.Keys(r.resolvedPeers)) {
			allResolved[name] = r.resolvedPeers[name]
			peerGraph.EnsureNode(name)
			_ = peerGraph.AddEdge(dag.Edge{From: alias, To: name})
		}
		for name, mp := range r.missingPeers {
			allMissing[name] = mp
		}
		pr.sched.drain()
	}

	if len(calcs) > 0 {
		cycles := transform.StronglyConnected(peerGraph)
		for _, c := range calcs {
			pr.run(c, cycles)
		}
	}

	unknown := make(map[string]NodeID)
	for name, id := range allResolved {
		if _, ok := children[name]; !ok {
			unknown[name] = id
		}
	}
	return unknown, allMissing
}

func (pr *peerResolver) resolvePeersOfNode(alias string, nodeID NodeID, parentScope parentRefs, pc peerCtx) nodeResult {
	node := pr.rc.node(nodeID)
	pkg := node.pkg
	key := pkg.PkgIDWithPatchHash

	if pr.purePkgs[key] && !pkg.HasPeers() {
		if n, ok := pr.graph[DepPath(key)]; ok && n.Depth <= node.depth {
			pr.setPath(nodeID, DepPath(key))
			return nodeResult{}
		}
	}

	children := node.children.get()
	parentNodeIDs := append(slices.Clone(pc.parentNodeIDs), nodeID)

	scope := parentScope
	if len(children) > 0 {
		scope = maps.Clone(parentScope)
		added := pr.toPkgByName(children, parentNodeIDs)
		for _, name := range slices.Sorted(maps.Keys(added)) {
			if !pr.rc.allPeerDepNames[name] {
				continue
			}
			ref := *added[name]
			if existing := scope[name]; existing != nil {
				if pr.sameProvider(existing, &ref) {
					continue
				}
				ref.occurrence = existing.occurrence + 1
			}
			scope[name] = &ref
		}
	}

	if hit := pr.findHit(scope, key); hit != nil {
		pr.cacheHits++
		parents := pr.parents(parentNodeIDs)
		for _, name := range slices.Sorted(maps.Keys(hit.missingPeers)) {
			pc.issues.addMissing(name, parents, hit.missingPeers[name])
		}
		hit.depPath.then(func(dp DepPath) {
			pr.setPath(nodeID, dp)
			if n, ok := pr.graph[dp]; ok {
				n.Depth = min(n.Depth, node.depth)
			}
		})
		return nodeResult{resolvedPeers: hit.resolvedPeers, missingPeers: hit.missingPeers}
	}

	unknownOfChildren, missingOfChildren := pr.resolvePeersOfChildren(children, scope, peerCtx{
		issues:        pc.issues,
		parentNodeIDs: parentNodeIDs,
	})

	var ownResolved map[string]NodeID
	var ownMissing map[string]MissingPeer
	if pkg.HasPeers() {
		ownResolved, ownMissing = pr.resolveOwnPeers(pkg, scope, parentNodeIDs, pc.issues)
	}

	allResolved := maps.Clone(unknownOfChildren)
	maps.Copy(allResolved, ownResolved)
	delete(allResolved, pkg.Name)
	allMissing := maps.Clone(missingOfChildren)
	maps.Copy(allMissing, ownMissing)

	isPure := len(allResolved) == 0 && len(allMissing) == 0
	var cache *peersCacheItem
	if isPure {
		pr.purePkgs[key] = true
	} else {
		cache = &peersCacheItem{resolvedPeers: allResolved, missingPeers: allMissing, depPath: pr.newFuture()}
		pr.peersCache[key] = append(pr.peersCache[key], cache)
	}

	add := func(dp DepPath) {
		if cache != nil {
			cache.depPath.resolve(dp)
		}
		pr.addDepPathToGraph(dp, nodeID, node, children, ownResolved, allResolved, missingOfChildren, isPure)
	}

	if len(allResolved) == 0 {
		add(DepPath(key))
		return nodeResult{resolvedPeers: allResolved, missingPeers: allMissing}
	}

	var known []deppath.PeerID
	var pending []pendingPeer
	for _, name := range slices.Sorted(maps.Keys(allResolved)) {
		id := allResolved[name]
		if isLinkID(string(id)) {
			known = append(known, deppath.PeerID{ID: deppath.LinkedPeerID(name, strings.TrimPrefix(string(id), "link:"))})
			continue
		}
		if dp, ok := pr.pathsByNodeID[id]; ok {
			known = append(known, deppath.PeerID{ID: string(dp)})
			continue
		}
		pending = append(pending, pendingPeer{alias: name, nodeID: id})
	}
	if len(pending) == 0 {
		add(DepPath(key + deppath.PeerGraphHash(known, pr.maxLength)))
		return nodeResult{resolvedPeers: allResolved, missingPeers: allMissing}
	}

	calc := &pendingCalc{
		alias:   alias,
		known:   known,
		pending: pending,
		finish: func(ids []deppath.PeerID) {
			add(DepPath(key + deppath.PeerGraphHash(ids, pr.maxLength)))
		},
	}
	pr.calcs = append(pr.calcs, calc)
	return nodeResult{resolvedPeers: allResolved, missingPeers: allMissing, calc: calc}
}

// resolveOwnPeers looks the package's peer dependencies up in scope and
// records missing and bad peers.
func (pr *peerResolver) resolveOwnPeers(pkg *ResolvedPackage, scope parentRefs, parentNodeIDs []NodeID, issues *PeerDependencyIssues) (map[string]NodeID, map[string]MissingPeer) {
	resolved := make(map[string]NodeID)
	missing := make(map[string]MissingPeer)
	for _, name := range slices.Sorted(maps.Keys(pkg.PeerDependencies)) {
		peer := pkg.PeerDependencies[name]
		rng := version.StripWorkspace(peer.Version)
		ref := scope[name]
		if ref == nil {
			mp := MissingPeer{Range: peer.Version, Optional: peer.Optional}
			missing[name] = mp
			issues.addMissing(name, pr.parents(parentNodeIDs), mp)
			continue
		}
		if !version.Satisfies(ref.version, rng) {
			issues.addBad(name, BadPeerIssue{
				Parents:      pr.parents(parentNodeIDs),
				Optional:     peer.Optional,
				WantedRange:  rng,
				FoundVersion: ref.version,
				ResolvedFrom: pr.parents(ref.parentNodeIDs),
			})
		}
		if ref.nodeID != "" {
			resolved[name] = ref.nodeID
		}
	}
	return resolved, missing
}

func (pr *peerResolver) addDepPathToGraph(dp DepPath, nodeID NodeID, node *treeNode, children, ownResolved, allResolved map[string]NodeID, missingOfChildren map[string]MissingPeer, isPure bool) {
	pkg := node.pkg
	pr.setPath(nodeID, dp)
	if pr.depPathsByPkgID[pkg.PkgIDWithPatchHash] == nil {
		pr.depPathsByPkgID[pkg.PkgIDWithPatchHash] = make(map[DepPath]bool)
	}
	pr.depPathsByPkgID[pkg.PkgIDWithPatchHash][dp] = true

	existing, ok := pr.graph[dp]
	if ok && existing.Depth <= node.depth {
		return
	}

	childNodes := make(map[string]NodeID, len(children)+len(ownResolved))
	if ok {
		maps.Copy(childNodes, existing.childNodes)
	}
	maps.Copy(childNodes, children)
	maps.Copy(childNodes, ownResolved)

	transitive := make(map[string]bool)
	for name := range allResolved {
		if _, declared := pkg.PeerDependencies[name]; !declared {
			transitive[name] = true
		}
	}
	for name := range missingOfChildren {
		if _, declared := pkg.PeerDependencies[name]; !declared {
			transitive[name] = true
		}
	}

	pr.graph[dp] = &Node{
		DepPath:                    dp,
		PkgID:                      pkg.ID,
		PkgIDWithPatchHash:         pkg.PkgIDWithPatchHash,
		Name:                       pkg.Name,
		Version:                    pkg.Version,
		OptionalDependencies:       pkg.OptionalDependencies,
		PeerDependencies:           pkg.PeerDependencies,
		TransitivePeerDependencies: slices.Sorted(maps.Keys(transitive)),
		ResolvedPeerNames:          slices.Sorted(maps.Keys(allResolved)),
		Depth:                      node.depth,
		Installable:                node.installable,
		IsPure:                     isPure,
		Prod:                       pkg.Prod,
		Dev:                        pkg.Dev,
		Optional:                   pkg.Optional,
		Resolution:                 pkg.Resolution,
		Patch:                      pkg.Patch,
		childNodes:                 childNodes,
	}
}

// parents renders a chain of tree nodes as name@version pairs.
func (pr *peerResolver) parents(ids []NodeID) []ParentPkg {
	out := make([]ParentPkg, 0, len(ids))
	for _, id := range ids {
		if n, ok := pr.rc.tree[id]; ok {
			out = append(out, ParentPkg{Name: n.pkg.Name, Version: n.pkg.Version})
		}
	}
	return out
}
