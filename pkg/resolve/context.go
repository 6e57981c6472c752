package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
	"github.com/matzehuels/stackresolve/pkg/source"
)

// resolutionContext is the mutable state of one run. It is only touched by
// the goroutine driving the run; source requests fan out and fan back in
// before any of it changes.
type resolutionContext struct {
	opts  Options
	log   *log.Logger
	runID string

	nodeCounter        int
	resolvedPkgsByID   map[string]*ResolvedPackage
	tree               map[NodeID]*treeNode
	childrenByParentID map[string][]childRef
	missingPeersByID   map[string]map[string]MissingPeer // missing peers of a package's subtree
	pendingNodes       []pendingNode
	allPeerDepNames    map[string]bool

	wantedToBeSkipped map[string]bool
	skippedOptional   []SkippedOptional
	appliedPatches    map[string]bool
	catalogsUsed      map[string]map[string]lockfile.ResolvedEntry

	importers map[string]*resolvedImporter
	fetches   *fetchTracker
}

// resolvedImporter holds the direct dependencies of one project.
type resolvedImporter struct {
	project            *Project
	directDependencies []Dependency
	directNodeIDs      map[string]NodeID
	linked             []*LinkedDependency
}

func newResolutionContext(opts Options) *resolutionContext {
	runID := uuid.NewString()
	return &resolutionContext{
		opts:               opts,
		log:                opts.Logger.With("run", runID[:8]),
		runID:              runID,
		resolvedPkgsByID:   make(map[string]*ResolvedPackage),
		tree:               make(map[NodeID]*treeNode),
		childrenByParentID: make(map[string][]childRef),
		missingPeersByID:   make(map[string]map[string]MissingPeer),
		allPeerDepNames:    make(map[string]bool),
		wantedToBeSkipped:  make(map[string]bool),
		appliedPatches:     make(map[string]bool),
		catalogsUsed:       make(map[string]map[string]lockfile.ResolvedEntry),
		importers:          make(map[string]*resolvedImporter),
		fetches:            &fetchTracker{log: opts.Logger},
	}
}

func (rc *resolutionContext) nextNodeID() NodeID {
	rc.nodeCounter++
	return NodeID(fmt.Sprintf(">%d>", rc.nodeCounter))
}

// fetchTracker runs package fetches in the background and collects their
// failures. Fetches outlive the run's context; callers wait on them
// through Result.WaitTillAllFetchingsFinish.
type fetchTracker struct {
	log  *log.Logger
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (t *fetchTracker) start(ctx context.Context, id string, fetch source.FetchFunc, optional bool) {
	if fetch == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if _, err := fetch(ctx); err != nil {
			if optional {
				t.log.Warn("skipping optional package", "pkg", id, "reason", err)
				return
			}
			t.mu.Lock()
			t.errs = append(t.errs, errors.Wrap(errors.ErrCodeNetwork, err, "fetch %s", id))
			t.mu.Unlock()
		}
	}()
}

func (t *fetchTracker) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return stderrors.Join(t.errs...)
}
