// Package dag provides a small directed graph used to analyse dependency
// graphs.
//
// # Overview
//
// The resolver produces graphs keyed by dependency path. Before they are
// handed to a linker they must be acyclic and every node must be reachable
// from a project. This package provides the data structure those checks run
// on; the [transform] subpackage provides the algorithms.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "app"})
//	g.AddNode(dag.Node{ID: "lib@1.0.0"})
//	g.AddEdge(dag.Edge{From: "app", To: "lib@1.0.0", Label: "lib"})
//
// Query the graph with [Graph.Children], [Graph.Parents], [Graph.Reachable]
// and related methods. [Graph.Validate] reports [ErrGraphHasCycle] when a
// cycle is present.
//
// # Determinism
//
// [Graph.Nodes], [Graph.Sources] and [Graph.Sinks] return nodes sorted by ID
// and children are kept in insertion order, so algorithms built on top of a
// Graph are deterministic if the graph was built deterministically.
//
// # Concurrency
//
// Graph instances are not safe for concurrent use.
//
// [transform]: github.com/matzehuels/stackresolve/pkg/dag/transform
package dag
