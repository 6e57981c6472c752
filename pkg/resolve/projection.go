package resolve

import (
	"maps"
	"slices"

	"github.com/matzehuels/stackresolve/pkg/deppath"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
)

// Lockfile projects the result onto a lockfile. Importers list every
// direct dependency under the field it was declared in; packages hold one
// snapshot per DepPath. Edges removed while breaking cycles are written
// back, since a lockfile may describe cycles.
func (r *Result) Lockfile() *lockfile.Lockfile {
	lf := lockfile.New()

	if len(r.catalogs) > 0 {
		lf.Catalogs = make(map[string]map[string]lockfile.ResolvedEntry, len(r.catalogs))
		for name, entries := range r.catalogs {
			lf.Catalogs[name] = maps.Clone(entries)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(r.importers)) {
		lf.Importers[id] = r.importer(id, r.importers[id])
	}

	broken := make(map[DepPath]map[string]DepPath)
	for _, e := range r.BrokenEdges {
		if broken[e.From] == nil {
			broken[e.From] = make(map[string]DepPath)
		}
		broken[e.From][e.Alias] = e.To
	}

	for _, dp := range r.Graph.DepPaths() {
		n := r.Graph[dp]
		snap := &lockfile.PackageSnapshot{
			Resolution:                 n.Resolution,
			TransitivePeerDependencies: n.TransitivePeerDependencies,
			Optional:                   n.Optional,
			Dev:                        n.Dev && !n.Prod,
			Patched:                    n.Patch != nil,
		}
		children := maps.Clone(n.Children)
		maps.Copy(children, broken[dp])
		for _, alias := range slices.Sorted(maps.Keys(children)) {
			ref := deppath.ToRef(string(children[alias]), alias)
			if n.OptionalDependencies[alias] {
				if snap.OptionalDependencies == nil {
					snap.OptionalDependencies = make(map[string]string)
				}
				snap.OptionalDependencies[alias] = ref
				continue
			}
			if snap.Dependencies == nil {
				snap.Dependencies = make(map[string]string)
			}
			snap.Dependencies[alias] = ref
		}
		for name, peer := range n.PeerDependencies {
			if snap.PeerDependencies == nil {
				snap.PeerDependencies = make(map[string]string)
			}
			snap.PeerDependencies[name] = peer.Version
			if peer.Optional {
				if snap.PeerDependenciesMeta == nil {
					snap.PeerDependenciesMeta = make(map[string]lockfile.PeerDependencyMeta)
				}
				snap.PeerDependenciesMeta[name] = lockfile.PeerDependencyMeta{Optional: true}
			}
		}
		lf.Packages[string(dp)] = snap
	}
	return lf
}

func (r *Result) importer(id string, imp *resolvedImporter) *lockfile.Importer {
	out := &lockfile.Importer{}
	add := func(alias string, dev, optional bool, entry lockfile.ResolvedEntry) {
		var field *map[string]lockfile.ResolvedEntry
		switch {
		case optional:
			field = &out.OptionalDependencies
		case dev:
			field = &out.DevDependencies
		default:
			field = &out.Dependencies
		}
		if *field == nil {
			*field = make(map[string]lockfile.ResolvedEntry)
		}
		(*field)[alias] = entry
	}

	for _, dep := range imp.directDependencies {
		switch d := dep.(type) {
		case *PkgAddress:
			dp, ok := r.DependenciesByProjectID[id][d.Alias]
			if !ok {
				continue
			}
			spec := d.Spec
			if d.NormalizedSpec != "" {
				spec = d.NormalizedSpec
			}
			add(d.Alias, d.Dev, d.Optional, lockfile.ResolvedEntry{
				Specifier: spec,
				Version:   deppath.ToRef(string(dp), d.Alias),
			})
		case *LinkedDependency:
			add(d.Alias, d.Dev, d.Optional, lockfile.ResolvedEntry{Specifier: d.Spec, Version: d.PkgID})
		}
	}
	return out
}
