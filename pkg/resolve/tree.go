package resolve

import (
	"strings"

	"github.com/matzehuels/stackresolve/pkg/errors"
)

// lazyChildren is either a resolved alias -> node map or a thunk producing
// one. The thunk runs at most once.
type lazyChildren struct {
	thunk func() map[string]NodeID
	value map[string]NodeID
}

func resolvedChildren(m map[string]NodeID) *lazyChildren {
	if m == nil {
		m = map[string]NodeID{}
	}
	return &lazyChildren{value: m}
}

func deferredChildren(f func() map[string]NodeID) *lazyChildren {
	return &lazyChildren{thunk: f}
}

func (c *lazyChildren) get() map[string]NodeID {
	if c.thunk != nil {
		c.value = c.thunk()
		c.thunk = nil
		if c.value == nil {
			c.value = map[string]NodeID{}
		}
	}
	return c.value
}

type treeNode struct {
	children    *lazyChildren
	depth       int
	installable bool
	pkg         *ResolvedPackage
}

// childRef is a child recorded the first time a package's dependencies were
// resolved. id is a package id or a link: id.
type childRef struct {
	alias string
	id    string
}

type pendingNode struct {
	nodeID      NodeID
	pkg         *ResolvedPackage
	depth       int
	installable bool
	parentIDs   []string
}

func isLinkID(id string) bool { return strings.HasPrefix(id, "link:") }

// parentIDsContainSequence reports whether id1 appears in ids before a later
// occurrence of id2, with the last element excluded from both ends. A chain
// that already walked id1 -> ... -> id2 would only repeat itself.
func parentIDsContainSequence(ids []string, id1, id2 string) bool {
	i1 := -1
	for i, id := range ids {
		if id == id1 {
			i1 = i
			break
		}
	}
	if i1 == -1 || i1 == len(ids)-1 {
		return false
	}
	i2 := -1
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == id2 {
			i2 = i
			break
		}
	}
	return i1 < i2 && i2 != len(ids)-1
}

func isCyclic(parentIDs []string, parentID, id string) bool {
	return id == parentID || parentIDsContainSequence(parentIDs, parentID, id)
}

// node returns the tree node for id and panics if it is missing.
func (rc *resolutionContext) node(id NodeID) *treeNode {
	n, ok := rc.tree[id]
	errors.Invariant(ok, "dependency tree has no node %s", id)
	return n
}

// buildTree expands the recorded children of a package that was first
// resolved elsewhere. Each child gets a fresh node whose own children are
// built lazily in turn.
func (rc *resolutionContext) buildTree(parentID string, parentIDs []string, children []childRef, depth int, installable bool) map[string]NodeID {
	ids := make(map[string]NodeID, len(children))
	for _, child := range children {
		if isLinkID(child.id) {
			ids[child.alias] = NodeID(child.id)
			continue
		}
		if isCyclic(parentIDs, parentID, child.id) {
			continue
		}
		pkg, ok := rc.resolvedPkgsByID[child.id]
		errors.Invariant(ok, "no resolved package %s", child.id)
		if pkg.Manifest.IsLeaf() {
			id := NodeID(child.id)
			if n, ok := rc.tree[id]; ok {
				n.depth = min(n.depth, depth)
			} else {
				rc.tree[id] = &treeNode{children: resolvedChildren(nil), depth: depth, installable: installable, pkg: pkg}
			}
			ids[child.alias] = id
			continue
		}
		childInstallable := installable && !rc.wantedToBeSkipped[child.id]
		childParentIDs := appendID(parentIDs, child.id)
		id := rc.nextNodeID()
		ids[child.alias] = id
		rc.tree[id] = &treeNode{
			children: deferredChildren(func() map[string]NodeID {
				return rc.buildTree(child.id, childParentIDs, rc.childrenByParentID[child.id], depth+1, childInstallable)
			}),
			depth:       depth,
			installable: childInstallable,
			pkg:         pkg,
		}
	}
	return ids
}

func appendID(ids []string, id string) []string {
	out := make([]string, len(ids), len(ids)+1)
	copy(out, ids)
	return append(out, id)
}
