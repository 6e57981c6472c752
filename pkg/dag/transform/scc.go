package transform

import (
	"slices"
	"strings"

	"github.com/matzehuels/stackresolve/pkg/dag"
)

// StronglyConnected returns the strongly connected components of g that
// form cycles: components with more than one node, or a single node with a
// self-loop. Members of each component are sorted and components are
// ordered by their first member.
//
// The implementation is Tarjan's algorithm; visiting order follows
// [dag.Graph.Nodes] and child insertion order.
func StronglyConnected(g *dag.Graph) [][]string {
	var (
		index   int
		stack   []string
		onStack = make(map[string]bool)
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		comps   [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Children(v) {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		if len(comp) > 1 || slices.Contains(g.Children(v), v) {
			slices.Sort(comp)
			comps = append(comps, comp)
		}
	}

	for _, n := range g.Nodes() {
		if _, seen := indices[n.ID]; !seen {
			strongConnect(n.ID)
		}
	}

	slices.SortFunc(comps, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return comps
}
