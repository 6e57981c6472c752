package resolve

import (
	"cmp"
	"maps"
	"slices"
)

// dedupePeerDependents merges peer variants of a package. A DepPath whose
// children and resolved peers all appear, unchanged, in another DepPath of
// the same package is replaced by that one. Merging can make more variants
// compatible, so passes repeat until nothing changes. It returns the number
// of removed DepPaths.
//
// A consumer of a replaced DepPath can only gain peer edges, never lose
// them: the target carries every resolved peer of the variant it replaces.
func dedupePeerDependents(g Graph, dependenciesByProjectID map[string]map[string]DepPath) int {
	removed := 0
	for {
		mapping := duplicateDepPaths(g)
		if len(mapping) == 0 {
			return removed
		}
		for from, to := range mapping {
			target := g[to]
			source := g[from]
			target.Depth = min(target.Depth, source.Depth)
			target.Prod = target.Prod || source.Prod
			target.Dev = target.Dev || source.Dev
			target.Optional = target.Optional && source.Optional
			target.Installable = target.Installable || source.Installable
			delete(g, from)
		}
		for _, n := range g {
			for alias, dp := range n.Children {
				if to, ok := mapping[dp]; ok {
					n.Children[alias] = to
				}
			}
		}
		for _, deps := range dependenciesByProjectID {
			for alias, dp := range deps {
				if to, ok := mapping[dp]; ok {
					deps[alias] = to
				}
			}
		}
		removed += len(mapping)
	}
}

// duplicateDepPaths maps every redundant DepPath to its replacement. Targets
// are never redundant themselves, so one lookup is enough.
func duplicateDepPaths(g Graph) map[DepPath]DepPath {
	byPkg := make(map[string][]*Node)
	for _, dp := range g.DepPaths() {
		n := g[dp]
		byPkg[n.PkgIDWithPatchHash] = append(byPkg[n.PkgIDWithPatchHash], n)
	}

	mapping := make(map[DepPath]DepPath)
	for _, key := range slices.Sorted(maps.Keys(byPkg)) {
		nodes := byPkg[key]
		if len(nodes) < 2 {
			continue
		}
		slices.SortFunc(nodes, func(a, b *Node) int {
			if c := cmp.Compare(len(b.Children), len(a.Children)); c != 0 {
				return c
			}
			return cmp.Compare(a.DepPath, b.DepPath)
		})
		for i, super := range nodes {
			if _, ok := mapping[super.DepPath]; ok {
				continue
			}
			for _, sub := range nodes[i+1:] {
				if _, ok := mapping[sub.DepPath]; ok {
					continue
				}
				if isCompatibleAndHasMoreDeps(super, sub) {
					mapping[sub.DepPath] = super.DepPath
				}
			}
		}
	}
	return mapping
}

func isCompatibleAndHasMoreDeps(super, sub *Node) bool {
	if len(sub.Children) > len(super.Children) {
		return false
	}
	for alias, dp := range sub.Children {
		if super.Children[alias] != dp {
			return false
		}
	}
	for _, name := range sub.ResolvedPeerNames {
		if _, ok := slices.BinarySearch(super.ResolvedPeerNames, name); !ok {
			return false
		}
	}
	return true
}
