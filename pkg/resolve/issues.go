package resolve

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// ParentPkg is one package in the chain leading to a peer issue.
type ParentPkg struct {
	Name    string
	Version string
}

func (p ParentPkg) String() string { return p.Name + "@" + p.Version }

// MissingPeerIssue is a peer dependency no ancestor provides.
type MissingPeerIssue struct {
	Parents     []ParentPkg // From the project's direct dependency down to the dependent
	Optional    bool
	WantedRange string
}

// BadPeerIssue is a provided peer whose version is outside the wanted range.
type BadPeerIssue struct {
	Parents      []ParentPkg
	Optional     bool
	WantedRange  string
	FoundVersion string
	ResolvedFrom []ParentPkg // Chain leading to the provider
}

// PeerDependencyIssues are the peer problems of one project.
type PeerDependencyIssues struct {
	Missing map[string][]MissingPeerIssue
	Bad     map[string][]BadPeerIssue

	// Intersections holds, per missing peer, a range satisfying every
	// dependent. Conflicts lists missing peers without one.
	Intersections map[string]string
	Conflicts     []string
}

func newPeerDependencyIssues() *PeerDependencyIssues {
	return &PeerDependencyIssues{
		Missing:       make(map[string][]MissingPeerIssue),
		Bad:           make(map[string][]BadPeerIssue),
		Intersections: make(map[string]string),
	}
}

func (p *PeerDependencyIssues) addMissing(name string, parents []ParentPkg, mp MissingPeer) {
	p.Missing[name] = append(p.Missing[name], MissingPeerIssue{
		Parents:     parents,
		Optional:    mp.Optional,
		WantedRange: version.StripWorkspace(mp.Range),
	})
}

func (p *PeerDependencyIssues) addBad(name string, issue BadPeerIssue) {
	p.Bad[name] = append(p.Bad[name], issue)
}

// Empty reports whether there are no issues at all.
func (p *PeerDependencyIssues) Empty() bool {
	return p == nil || (len(p.Missing) == 0 && len(p.Bad) == 0)
}

// Count returns the number of issues that fail a strict run: every bad peer
// and every missing required peer.
func (p *PeerDependencyIssues) Count() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, issues := range p.Bad {
		n += len(issues)
	}
	for _, issues := range p.Missing {
		for _, issue := range issues {
			if !issue.Optional {
				n++
			}
		}
	}
	return n
}

// mergeMissing computes Intersections and Conflicts for required missing peers.
func (p *PeerDependencyIssues) mergeMissing() {
	for _, name := range slices.Sorted(maps.Keys(p.Missing)) {
		var ranges []string
		for _, issue := range p.Missing[name] {
			if !issue.Optional {
				ranges = append(ranges, issue.WantedRange)
			}
		}
		if len(ranges) == 0 {
			continue
		}
		if rng, ok := version.Intersect(ranges); ok {
			p.Intersections[name] = rng
		} else {
			p.Conflicts = append(p.Conflicts, name)
		}
	}
}

// Summary renders issues one per line, sorted.
func (p *PeerDependencyIssues) Summary() []string {
	var lines []string
	for _, name := range slices.Sorted(maps.Keys(p.Missing)) {
		for _, issue := range p.Missing[name] {
			kind := "missing peer"
			if issue.Optional {
				kind = "missing optional peer"
			}
			lines = append(lines, fmt.Sprintf("%s: %s %s@%q", chain(issue.Parents), kind, name, issue.WantedRange))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(p.Bad)) {
		for _, issue := range p.Bad[name] {
			lines = append(lines, fmt.Sprintf("%s: unmet peer %s@%q: found %s", chain(issue.Parents), name, issue.WantedRange, issue.FoundVersion))
		}
	}
	return lines
}

func chain(parents []ParentPkg) string {
	parts := make([]string, len(parents))
	for i, p := range parents {
		parts[i] = p.String()
	}
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, " > ")
}

// strictError turns issues of all projects into an error.
func strictError(byProject map[string]*PeerDependencyIssues) error {
	total := 0
	var first string
	for _, id := range slices.Sorted(maps.Keys(byProject)) {
		issues := byProject[id]
		if n := issues.Count(); n > 0 {
			if first == "" {
				if lines := issues.Summary(); len(lines) > 0 {
					first = id + ": " + lines[0]
				}
			}
			total += n
		}
	}
	if total == 0 {
		return nil
	}
	return errors.New(errors.ErrCodePeerDependencyIssues, "%d peer dependency issues (%s)", total, first)
}
