// Package workspace discovers the projects of a workspace on disk.
//
// A workspace is a directory holding a stackresolve-workspace.yaml file:
//
//	packages:
//	  - packages/*
//	  - apps/**
//	  - "!**/fixtures/**"
//	catalog:
//	  react: ^18.2.0
//	catalogs:
//	  legacy:
//	    react: ^17.0.2
//	patchedDependencies:
//	  lodash@4.17.21: patches/lodash.patch
//
// Patterns use doublestar syntax and are matched against directories that
// contain a package.json; a leading "!" excludes. The root directory is a
// project whenever it has a package.json. A directory without a workspace
// file is a workspace with the root as its only project.
package workspace

import (
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackresolve/pkg/catalog"
	"github.com/matzehuels/stackresolve/pkg/deppath"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/resolve"
)

// Filename is the workspace file name.
const Filename = "stackresolve-workspace.yaml"

// File is the decoded workspace file.
type File struct {
	Packages            []string                     `yaml:"packages,omitempty"`
	Catalog             map[string]string            `yaml:"catalog,omitempty"`
	Catalogs            map[string]map[string]string `yaml:"catalogs,omitempty"`
	PatchedDependencies map[string]string            `yaml:"patchedDependencies,omitempty"`
}

// Workspace is a loaded workspace.
type Workspace struct {
	Root      string                        // Absolute root directory
	File      File                          // Zero when there is no workspace file
	Projects  []*resolve.Project            // Sorted by id
	Manifests map[string]*manifest.Manifest // Absolute project dir -> manifest
}

// Find walks up from start to the nearest directory holding a workspace
// file. Without one, the nearest directory with a package.json is returned.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	nearest := ""
	for {
		if exists(filepath.Join(dir, Filename)) {
			return dir, nil
		}
		if nearest == "" && exists(filepath.Join(dir, manifest.Filename)) {
			nearest = dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if nearest == "" {
		return "", errors.New(errors.ErrCodeFileNotFound, "no %s or %s found above %s", Filename, manifest.Filename, start)
	}
	return nearest, nil
}

// Load reads the workspace rooted at root.
func Load(root string) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	ws := &Workspace{Root: root, Manifests: make(map[string]*manifest.Manifest)}

	data, err := os.ReadFile(filepath.Join(root, Filename))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &ws.File); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse %s", Filename)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	dirs, err := projectDirs(os.DirFS(root), ws.File.Packages)
	if err != nil {
		return nil, err
	}
	for _, rel := range dirs {
		dir := filepath.Join(root, filepath.FromSlash(rel))
		m, err := manifest.Read(dir)
		if err != nil {
			return nil, err
		}
		ws.Manifests[dir] = m
		ws.Projects = append(ws.Projects, &resolve.Project{ID: rel, Dir: dir, Manifest: m})
	}
	if len(ws.Projects) == 0 {
		return nil, errors.New(errors.ErrCodeFileNotFound, "no projects found in %s", root)
	}
	return ws, nil
}

// projectDirs returns the slash-separated directories below fsys that hold
// a package.json and match patterns, sorted, with "." first when present.
func projectDirs(fsys fs.FS, patterns []string) ([]string, error) {
	found := make(map[string]bool)
	if existsFS(fsys, manifest.Filename) {
		found["."] = true
	}

	var include, exclude []string
	for _, p := range patterns {
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, path.Clean(neg))
			continue
		}
		include = append(include, path.Clean(p))
	}

	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid package pattern %q", p)
		}
		matches, err := doublestar.Glob(fsys, path.Join(p, manifest.Filename))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "glob %q", p)
		}
		for _, m := range matches {
			dir := path.Dir(m)
			if isExcluded(dir, exclude) {
				continue
			}
			found[dir] = true
		}
	}

	return slices.Sorted(maps.Keys(found)), nil
}

func isExcluded(dir string, exclude []string) bool {
	if slices.Contains(strings.Split(dir, "/"), "node_modules") {
		return true
	}
	for _, p := range exclude {
		if ok, _ := doublestar.Match(p, dir); ok {
			return true
		}
	}
	return false
}

// Catalogs returns the default and named catalogs.
func (w *Workspace) Catalogs() catalog.Catalogs {
	out := make(catalog.Catalogs, len(w.File.Catalogs)+1)
	for name, entries := range w.File.Catalogs {
		out[name] = maps.Clone(entries)
	}
	if len(w.File.Catalog) > 0 {
		if out[catalog.DefaultName] == nil {
			out[catalog.DefaultName] = make(map[string]string)
		}
		maps.Copy(out[catalog.DefaultName], w.File.Catalog)
	}
	return out
}

// Patches reads every patch file and returns the patched dependencies
// keyed as in the workspace file, hashed by content.
func (w *Workspace) Patches() (map[string]resolve.Patch, error) {
	out := make(map[string]resolve.Patch, len(w.File.PatchedDependencies))
	for key, rel := range w.File.PatchedDependencies {
		data, err := os.ReadFile(filepath.Join(w.Root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "patch for %s", key)
		}
		out[key] = resolve.Patch{Path: rel, Hash: deppath.ShortHash(string(data))}
	}
	return out, nil
}

// Project returns the project with the given id.
func (w *Workspace) Project(id string) (*resolve.Project, bool) {
	for _, p := range w.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func existsFS(fsys fs.FS, name string) bool {
	_, err := fs.Stat(fsys, name)
	return err == nil
}
