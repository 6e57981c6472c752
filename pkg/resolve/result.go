package resolve

import (
	"context"

	"github.com/matzehuels/stackresolve/pkg/dag"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
)

// Result is the outcome of ResolveDependencyTree.
type Result struct {
	Graph                          Graph                            // Final graph keyed by DepPath
	DependenciesByProjectID        map[string]map[string]DepPath    // Project id -> alias -> DepPath
	LinkedDependenciesByProjectID  map[string][]*LinkedDependency   // Directory links per project, sorted by alias
	PeerDependencyIssuesByProjects map[string]*PeerDependencyIssues // Only projects with issues
	WantedToBeSkippedPackageIDs    []string                         // Optional packages that cannot be installed
	SkippedOptional                []SkippedOptional                // Optional dependencies that failed to resolve
	BrokenEdges                    []BrokenEdge                     // Edges removed to make Graph acyclic
	RunID                          string
	Stats                          Stats

	importers map[string]*resolvedImporter
	catalogs  map[string]map[string]lockfile.ResolvedEntry
	fetches   *fetchTracker
}

// WaitTillAllFetchingsFinish blocks until every fetch started during
// resolution has finished and returns the joined errors of the required
// ones. Optional packages that failed to fetch are only logged.
func (r *Result) WaitTillAllFetchingsFinish(ctx context.Context) error {
	if r.fetches == nil {
		return nil
	}
	return r.fetches.wait(ctx)
}

// DAG returns the final graph with a node per project.
func (r *Result) DAG() *dag.Graph {
	return r.Graph.DAG(r.DependenciesByProjectID)
}
