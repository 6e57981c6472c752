package resolve

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/stackresolve/pkg/source"
)

// dedupeInjectedDeps replaces injected workspace projects with links when
// the injected copy would resolve every dependency exactly like the
// project itself does.
func (rc *resolutionContext) dedupeInjectedDeps(g Graph, dependenciesByProjectID map[string]map[string]DepPath) int {
	deduped := 0
	for _, projectID := range slices.Sorted(maps.Keys(dependenciesByProjectID)) {
		deps := dependenciesByProjectID[projectID]
		for _, alias := range slices.Sorted(maps.Keys(deps)) {
			n, ok := g[deps[alias]]
			if !ok || !strings.HasPrefix(n.PkgID, "file:") {
				continue
			}
			target := strings.TrimPrefix(n.PkgID, "file:")
			if target == projectID {
				continue
			}
			targetDeps, ok := dependenciesByProjectID[target]
			if !ok || !sameChildren(n.Children, targetDeps) {
				continue
			}

			delete(deps, alias)
			linked := &LinkedDependency{
				Alias:   alias,
				Name:    n.Name,
				Version: n.Version,
				PkgID:   "link:" + source.RelSlash(projectID, target),
				Dir:     filepath.Join(rc.opts.LockfileDir, filepath.FromSlash(target)),
				Resolution: source.Resolution{
					Type:      "directory",
					Directory: filepath.Join(rc.opts.LockfileDir, filepath.FromSlash(target)),
				},
			}
			if imp := rc.importers[projectID]; imp != nil {
				imp.replaceDirect(alias, linked)
			}
			rc.log.Debug("deduped injected dependency", "project", projectID, "alias", alias, "target", target)
			deduped++
		}
	}
	return deduped
}

func sameChildren(children, deps map[string]DepPath) bool {
	for alias, dp := range children {
		if deps[alias] != dp {
			return false
		}
	}
	return true
}

// replaceDirect swaps the direct dependency alias for a link, keeping its
// specifier and flags.
func (imp *resolvedImporter) replaceDirect(alias string, linked *LinkedDependency) {
	for i, dep := range imp.directDependencies {
		if dep.DependencyAlias() != alias {
			continue
		}
		if addr, ok := dep.(*PkgAddress); ok {
			linked.Spec = addr.Spec
			linked.Dev = addr.Dev
			linked.Optional = addr.Optional
		}
		imp.directDependencies[i] = linked
	}
	delete(imp.directNodeIDs, alias)
	imp.linked = append(imp.linked, linked)
}
