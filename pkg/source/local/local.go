// Package local resolves the non-registry specifiers of a workspace on disk:
// workspace: ranges against the workspace projects, and link: and file:
// directories whose package.json is read from the filesystem.
package local

import (
	"context"
	"maps"
	"path/filepath"
	"slices"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/source"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// Source resolves workspace, link and file specifiers.
type Source struct {
	projects map[string]*manifest.Manifest // absolute dir -> manifest
	dirs     []string
}

var _ source.Source = (*Source)(nil)

// New creates a Source over the given workspace projects, keyed by
// absolute directory.
func New(projects map[string]*manifest.Manifest) *Source {
	s := &Source{projects: make(map[string]*manifest.Manifest, len(projects))}
	for dir, m := range projects {
		s.projects[filepath.Clean(dir)] = m
	}
	s.dirs = slices.Sorted(maps.Keys(s.projects))
	return s
}

// Handles reports whether s resolves spec.
func Handles(spec source.Spec) bool {
	return spec.Kind != source.SpecRegistry
}

// Request implements [source.Source]. Registry specifiers are rejected
// with UNSUPPORTED.
func (s *Source) Request(ctx context.Context, wanted manifest.WantedDependency, opts source.RequestOptions) (*source.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec := source.ParseSpec(wanted.Alias, wanted.Spec)
	switch spec.Kind {
	case source.SpecWorkspace:
		return s.workspace(wanted, spec, opts)
	case source.SpecLink:
		dir := filepath.Join(opts.ProjectDir, filepath.FromSlash(spec.Path))
		m, err := s.read(dir)
		if err != nil {
			return nil, err
		}
		return linked(dir, m, "local-directory", opts), nil
	case source.SpecFile:
		dir := filepath.Join(opts.ProjectDir, filepath.FromSlash(spec.Path))
		m, err := s.read(dir)
		if err != nil {
			return nil, err
		}
		return injected(dir, m, opts), nil
	}
	return nil, errors.New(errors.ErrCodeUnsupported, "%s is not a local specifier", wanted)
}

func (s *Source) workspace(wanted manifest.WantedDependency, spec source.Spec, opts source.RequestOptions) (*source.Response, error) {
	for _, dir := range s.dirs {
		m := s.projects[dir]
		if m.Name != spec.Name || !version.Satisfies(m.Version, spec.Range) {
			continue
		}
		if wanted.Injected {
			return injected(dir, m, opts), nil
		}
		return linked(dir, m, "workspace", opts), nil
	}
	return nil, errors.New(errors.ErrCodePackageNotFound, "no workspace project %s satisfies %s", spec.Name, spec.Range)
}

func (s *Source) read(dir string) (*manifest.Manifest, error) {
	if m, ok := s.projects[dir]; ok {
		return m, nil
	}
	return manifest.Read(dir)
}

func linked(dir string, m *manifest.Manifest, via string, opts source.RequestOptions) *source.Response {
	return &source.Response{
		ID:          "link:" + source.RelSlash(opts.ProjectDir, dir),
		Manifest:    m,
		Resolution:  source.Resolution{Type: "directory", Directory: dir},
		ResolvedVia: via,
		IsLocal:     true,
		LocalDir:    dir,
	}
}

func injected(dir string, m *manifest.Manifest, opts source.RequestOptions) *source.Response {
	rel := source.RelSlash(opts.LockfileDir, dir)
	return &source.Response{
		ID:          "file:" + rel,
		Manifest:    m,
		Resolution:  source.Resolution{Type: "directory", Directory: rel},
		ResolvedVia: "local-directory",
		LocalDir:    dir,
	}
}

// WithRegistry returns a Source that resolves local specifiers with s and
// every other specifier with registry.
func (s *Source) WithRegistry(registry source.Source) source.Source {
	return source.Func(func(ctx context.Context, wanted manifest.WantedDependency, opts source.RequestOptions) (*source.Response, error) {
		if Handles(source.ParseSpec(wanted.Alias, wanted.Spec)) {
			return s.Request(ctx, wanted, opts)
		}
		return registry.Request(ctx, wanted, opts)
	})
}
