package transform

import (
	"github.com/matzehuels/stackresolve/pkg/dag"
)

// BreakCycles removes back edges found by a depth-first search and returns
// them in the order they were found. The search starts from roots in the
// given order, then from any node not yet visited in ID order, and follows
// children in insertion order, so the same graph always loses the same edges.
func BreakCycles(g *dag.Graph, roots ...string) []dag.Edge {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, g.NodeCount())
	var backEdges [][2]string

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = gray
		for _, child := range g.Children(node) {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				backEdges = append(backEdges, [2]string{node, child})
			}
		}
		color[node] = black
	}

	for _, r := range roots {
		if _, ok := g.Node(r); ok && color[r] == white {
			dfs(r)
		}
	}
	for _, n := range g.Nodes() {
		if color[n.ID] == white {
			dfs(n.ID)
		}
	}

	var removed []dag.Edge
	for _, e := range backEdges {
		edges := g.EdgesBetween(e[0], e[1])
		if len(edges) == 0 {
			continue
		}
		removed = append(removed, edges...)
		g.RemoveEdge(e[0], e[1])
	}
	return removed
}
