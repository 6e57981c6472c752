package resolve

import (
	"maps"
	"slices"

	"github.com/matzehuels/stackresolve/pkg/dag"
	"github.com/matzehuels/stackresolve/pkg/dag/transform"
	"github.com/matzehuels/stackresolve/pkg/source"
)

// Node is a resolved package in the final graph.
type Node struct {
	DepPath                    DepPath
	PkgID                      string
	PkgIDWithPatchHash         string
	Name                       string
	Version                    string
	Children                   map[string]DepPath // Alias -> child, resolved peers included
	OptionalDependencies       map[string]bool
	PeerDependencies           map[string]PeerDependency
	TransitivePeerDependencies []string // Peers of the subtree the node does not declare itself
	ResolvedPeerNames          []string
	Depth                      int
	Installable                bool
	IsPure                     bool
	Prod                       bool
	Dev                        bool
	Optional                   bool
	Resolution                 source.Resolution
	Patch                      *Patch

	childNodes map[string]NodeID
}

// Graph is the final dependency graph keyed by DepPath.
type Graph map[DepPath]*Node

// DepPaths returns every DepPath, sorted.
func (g Graph) DepPaths() []DepPath {
	return slices.Sorted(maps.Keys(g))
}

// BrokenEdge is a dependency removed to make the graph acyclic.
type BrokenEdge struct {
	From  DepPath
	To    DepPath
	Alias string
}

// DAG converts the graph into a dag.Graph. Project roots become nodes named
// after the project id, with edges to their direct dependencies. Edges are
// labelled with the dependency alias.
func (g Graph) DAG(dependenciesByProjectID map[string]map[string]DepPath) *dag.Graph {
	d := dag.New(nil)
	for _, dp := range g.DepPaths() {
		n := g[dp]
		_ = d.AddNode(dag.Node{ID: string(dp), Depth: n.Depth + 1, Meta: dag.Metadata{
			"name":    n.Name,
			"version": n.Version,
			"pure":    n.IsPure,
		}})
	}
	for _, id := range slices.Sorted(maps.Keys(dependenciesByProjectID)) {
		_ = d.AddNode(dag.Node{ID: projectNodeID(id), Meta: dag.Metadata{"project": true}})
		deps := dependenciesByProjectID[id]
		for _, alias := range slices.Sorted(maps.Keys(deps)) {
			_ = d.AddEdge(dag.Edge{From: projectNodeID(id), To: string(deps[alias]), Label: alias})
		}
	}
	for _, dp := range g.DepPaths() {
		children := g[dp].Children
		for _, alias := range slices.Sorted(maps.Keys(children)) {
			_ = d.AddEdge(dag.Edge{From: string(dp), To: string(children[alias]), Label: alias})
		}
	}
	return d
}

func projectNodeID(id string) string { return "project:" + id }

// prune removes nodes unreachable from any project.
func (g Graph) prune(dependenciesByProjectID map[string]map[string]DepPath) {
	d := g.DAG(dependenciesByProjectID)
	roots := make([]string, 0, len(dependenciesByProjectID))
	for id := range dependenciesByProjectID {
		roots = append(roots, projectNodeID(id))
	}
	reachable := d.Reachable(roots...)
	for dp := range g {
		if !reachable[string(dp)] {
			delete(g, dp)
		}
	}
}

// breakCycles removes back edges found by a DFS from the projects in id
// order and returns them.
func (g Graph) breakCycles(dependenciesByProjectID map[string]map[string]DepPath) []BrokenEdge {
	d := g.DAG(dependenciesByProjectID)
	roots := make([]string, 0, len(dependenciesByProjectID))
	for _, id := range slices.Sorted(maps.Keys(dependenciesByProjectID)) {
		roots = append(roots, projectNodeID(id))
	}
	var broken []BrokenEdge
	for _, e := range transform.BreakCycles(d, roots...) {
		from := DepPath(e.From)
		n, ok := g[from]
		if !ok {
			continue
		}
		delete(n.Children, e.Label)
		broken = append(broken, BrokenEdge{From: from, To: DepPath(e.To), Alias: e.Label})
	}
	return broken
}
