// Package transform provides graph algorithms used by the resolver on
// dependency graphs that may contain cycles.
//
// # Cycle Breaking
//
// [BreakCycles] removes back edges found during a deterministic depth-first
// search so the remaining graph is acyclic. The caller passes the roots to
// start from (typically the direct dependencies of every project, in a
// stable order); the removed edges are returned so they can be re-added as
// plain links by whatever materializes the graph.
//
// # Strongly Connected Components
//
// [StronglyConnected] reports every cycle in a graph as a set of mutually
// reachable nodes. The peer resolver runs it over a small graph of peer
// names (an edge p → q means "p resolved its peer q") to find groups of
// packages that are waiting on each other's final identity.
//
// Both functions are deterministic for a given graph: nodes are visited in
// ID order and children in insertion order.
package transform
