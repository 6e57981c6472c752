package resolve

// peersCacheItem is a finished or pending peer resolution of a package. A
// node whose scope provides the same peers can reuse its DepPath.
type peersCacheItem struct {
	resolvedPeers map[string]NodeID
	missingPeers  map[string]MissingPeer
	depPath       *future
}

func (pr *peerResolver) findHit(scope parentRefs, pkgIDWithPatchHash string) *peersCacheItem {
	for _, item := range pr.peersCache[pkgIDWithPatchHash] {
		if pr.matches(item, scope) {
			return item
		}
	}
	return nil
}

// matches decides whether scope resolves the peers of item the same way.
// A peer matches when the scope provides the same node, a node with the
// same DepPath, or the same pure package. A provider that shadows another
// one of the same name (occurrence > 0) only matches by node or DepPath.
// Peers that were missing must still be missing.
func (pr *peerResolver) matches(item *peersCacheItem, scope parentRefs) bool {
	for name, cachedID := range item.resolvedPeers {
		ref := scope[name]
		if ref == nil || ref.nodeID == "" {
			return false
		}
		if ref.nodeID == cachedID {
			continue
		}
		if cached, ok := pr.pathsByNodeID[cachedID]; ok {
			if current, ok := pr.pathsByNodeID[ref.nodeID]; ok && current == cached {
				continue
			}
		}
		if ref.occurrence > 0 {
			return false
		}
		current, ok := pr.rc.tree[ref.nodeID]
		if !ok {
			return false
		}
		cached, ok := pr.rc.tree[cachedID]
		if !ok {
			return false
		}
		key := current.pkg.PkgIDWithPatchHash
		if !pr.purePkgs[key] || key != cached.pkg.PkgIDWithPatchHash {
			return false
		}
	}
	for name := range item.missingPeers {
		if scope[name] != nil {
			return false
		}
	}
	return true
}
