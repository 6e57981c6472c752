package transform_test

import (
	"fmt"

	"github.com/matzehuels/stackresolve/pkg/dag"
	"github.com/matzehuels/stackresolve/pkg/dag/transform"
)

func ExampleBreakCycles() {
	// A plugin and its host depend on each other.
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "host@1.0.0"})
	_ = g.AddNode(dag.Node{ID: "plugin@1.0.0"})
	_ = g.AddEdge(dag.Edge{From: "host@1.0.0", To: "plugin@1.0.0", Label: "plugin"})
	_ = g.AddEdge(dag.Edge{From: "plugin@1.0.0", To: "host@1.0.0", Label: "host"})

	removed := transform.BreakCycles(g, "host@1.0.0")
	for _, e := range removed {
		fmt.Printf("removed %s -> %s (%s)\n", e.From, e.To, e.Label)
	}
	fmt.Println("Edges after:", g.EdgeCount())
	// Output:
	// removed plugin@1.0.0 -> host@1.0.0 (host)
	// Edges after: 1
}

func ExampleStronglyConnected() {
	// Peer names pointing at the peers they resolved.
	g := dag.New(nil)
	for _, id := range []string{"a", "b", "c"} {
		_ = g.AddNode(dag.Node{ID: id})
	}
	_ = g.AddEdge(dag.Edge{From: "a", To: "b"})
	_ = g.AddEdge(dag.Edge{From: "b", To: "a"})
	_ = g.AddEdge(dag.Edge{From: "b", To: "c"})

	fmt.Println(transform.StronglyConnected(g))
	// Output:
	// [[a b]]
}
