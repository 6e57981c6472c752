package resolve

import (
	"slices"

	"github.com/matzehuels/stackresolve/pkg/deppath"
)

// scheduler runs continuations in FIFO order. Peer resolution is single
// threaded; a continuation only runs when the scheduler is drained.
type scheduler struct {
	queue []func()
}

func (s *scheduler) enqueue(f func()) { s.queue = append(s.queue, f) }

func (s *scheduler) drain() {
	for len(s.queue) > 0 {
		f := s.queue[0]
		s.queue = s.queue[1:]
		f()
	}
}

// future is a single-assignment DepPath. Resolving twice keeps the first value.
type future struct {
	sched   *scheduler
	value   DepPath
	done    bool
	waiters []func(DepPath)
}

func (f *future) resolve(v DepPath) {
	if f.done {
		return
	}
	f.done, f.value = true, v
	for _, w := range f.waiters {
		f.sched.enqueue(func() { w(v) })
	}
	f.waiters = nil
}

func (f *future) then(fn func(DepPath)) {
	if f.done {
		v := f.value
		f.sched.enqueue(func() { fn(v) })
		return
	}
	f.waiters = append(f.waiters, fn)
}

type pendingPeer struct {
	alias  string
	nodeID NodeID
}

// pendingCalc is a DepPath that waits for the DepPaths of some of its peers.
// Peers in a cycle with the waiting node are rendered as name@version.
type pendingCalc struct {
	alias   string
	known   []deppath.PeerID
	pending []pendingPeer
	cyclic  map[string]bool
	finish  func([]deppath.PeerID)
	done    bool
}

// run starts waiting once the cycles among the node's siblings are known.
func (pr *peerResolver) run(c *pendingCalc, cycles [][]string) {
	c.cyclic = make(map[string]bool)
	for _, cycle := range cycles {
		if slices.Contains(cycle, c.alias) {
			for _, alias := range cycle {
				c.cyclic[alias] = true
			}
		}
	}

	var waiting []*future
	for _, p := range c.pending {
		if c.cyclic[p.alias] {
			continue
		}
		if f := pr.nodeFuture(p.nodeID); !f.done {
			waiting = append(waiting, f)
		}
	}
	if len(waiting) == 0 {
		pr.sched.enqueue(func() { pr.complete(c) })
		return
	}
	remaining := len(waiting)
	for _, f := range waiting {
		f.then(func(DepPath) {
			remaining--
			if remaining == 0 {
				pr.complete(c)
			}
		})
	}
}

// complete computes the DepPath. Peers whose future is still open, which
// only happens when forced, get a placeholder like cyclic ones.
func (pr *peerResolver) complete(c *pendingCalc) {
	if c.done {
		return
	}
	c.done = true
	ids := slices.Clone(c.known)
	for _, p := range c.pending {
		f := pr.nodeFuture(p.nodeID)
		if c.cyclic[p.alias] || !f.done {
			pkg := pr.rc.node(p.nodeID).pkg
			ids = append(ids, deppath.PeerID{Name: pkg.Name, Version: pkg.Version})
			continue
		}
		ids = append(ids, deppath.PeerID{ID: string(f.value)})
	}
	c.finish(ids)
}

// settle drains the scheduler and forces calculations that can no longer
// make progress, oldest first, until everything has a DepPath.
func (pr *peerResolver) settle() {
	for {
		pr.sched.drain()
		i := slices.IndexFunc(pr.calcs, func(c *pendingCalc) bool { return !c.done })
		if i == -1 {
			return
		}
		pr.rc.log.Debug("breaking peer wait", "alias", pr.calcs[i].alias)
		pr.complete(pr.calcs[i])
	}
}
