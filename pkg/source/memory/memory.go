// Package memory provides an in-process [source.Source] backed by fixture
// manifests. It is used by tests and by the CLI's --fixtures mode, where a
// whole registry is described in one YAML file.
package memory

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/source"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// Registry is a thread-safe set of packages and workspace projects.
type Registry struct {
	mu          sync.RWMutex
	packages    map[string]map[string]*manifest.Manifest // name -> version -> manifest
	distTags    map[string]map[string]string
	projects    map[string]*manifest.Manifest // absolute dir -> manifest
	failures    map[string]error              // name -> request error
	fetchErrs   map[string]error              // id -> fetch error
	unsupported map[string]string             // id -> reason

	requests atomic.Int64
	fetches  atomic.Int64
}

var _ source.Source = (*Registry)(nil)

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		packages:    make(map[string]map[string]*manifest.Manifest),
		distTags:    make(map[string]map[string]string),
		projects:    make(map[string]*manifest.Manifest),
		failures:    make(map[string]error),
		fetchErrs:   make(map[string]error),
		unsupported: make(map[string]string),
	}
}

// Add registers a package version. It returns r for chaining.
func (r *Registry) Add(m *manifest.Manifest) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.packages[m.Name] == nil {
		r.packages[m.Name] = make(map[string]*manifest.Manifest)
	}
	r.packages[m.Name][m.Version] = m
	return r
}

// Tag points a dist-tag of name at version.
func (r *Registry) Tag(name, tag, v string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.distTags[name] == nil {
		r.distTags[name] = make(map[string]string)
	}
	r.distTags[name][tag] = v
	return r
}

// AddProject registers a workspace project located at dir.
func (r *Registry) AddProject(dir string, m *manifest.Manifest) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[filepath.Clean(dir)] = m
	return r
}

// Fail makes every request for name return err.
func (r *Registry) Fail(name string, err error) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = err
	return r
}

// FailFetch makes fetching the package id return err.
func (r *Registry) FailFetch(id string, err error) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchErrs[id] = err
	return r
}

// Unsupported marks the package id as not installable on this platform.
func (r *Registry) Unsupported(id, reason string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsupported[id] = reason
	return r
}

// Requests returns how many requests have been served.
func (r *Registry) Requests() int { return int(r.requests.Load()) }

// Fetches returns how many fetches have completed.
func (r *Registry) Fetches() int { return int(r.fetches.Load()) }

// Request implements [source.Source].
func (r *Registry) Request(ctx context.Context, wanted manifest.WantedDependency, opts source.RequestOptions) (*source.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.requests.Add(1)

	spec := source.ParseSpec(wanted.Alias, wanted.Spec)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err, ok := r.failures[spec.Name]; ok {
		return nil, err
	}

	switch spec.Kind {
	case source.SpecWorkspace:
		return r.requestWorkspace(wanted, spec, opts)
	case source.SpecLink:
		return r.requestLink(wanted, spec, opts)
	case source.SpecFile:
		return r.requestFile(spec, opts)
	}
	return r.requestRegistry(spec, opts)
}

func (r *Registry) requestRegistry(spec source.Spec, opts source.RequestOptions) (*source.Response, error) {
	versions := r.packages[spec.Name]
	if len(versions) == 0 {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %s not found", spec.Name)
	}

	var picked string
	if cur := opts.CurrentPkg; cur != nil && !opts.Update && cur.Name == spec.Name {
		if _, ok := versions[cur.Version]; ok {
			picked = cur.Version
		}
	}
	if picked == "" {
		if tagged, ok := r.distTags[spec.Name][spec.Range]; ok {
			picked = tagged
		} else if v, ok := version.MaxSatisfying(slices.Collect(maps.Keys(versions)), spec.Range); ok {
			picked = v
		} else {
			return nil, errors.New(errors.ErrCodeVersionNotFound, "no version of %s satisfies %s", spec.Name, spec.Range)
		}
	}

	m := versions[picked]
	id := m.ID()
	res := &source.Response{
		ID:       id,
		Manifest: m,
		Resolution: source.Resolution{
			Tarball:   fmt.Sprintf("memory://%s/-/%s.tgz", m.Name, picked),
			Integrity: integrity(id),
		},
		ResolvedVia: "registry",
		Unsupported: r.unsupported[id],
	}
	if !opts.SkipFetch {
		res.Fetch = r.fetcher(id, res.Resolution.Integrity)
	}
	return res, nil
}

func (r *Registry) requestWorkspace(wanted manifest.WantedDependency, spec source.Spec, opts source.RequestOptions) (*source.Response, error) {
	for _, dir := range slices.Sorted(maps.Keys(r.projects)) {
		m := r.projects[dir]
		if m.Name != spec.Name || !version.Satisfies(m.Version, spec.Range) {
			continue
		}
		if wanted.Injected {
			return r.injected(dir, m, opts)
		}
		return &source.Response{
			ID:          "link:" + source.RelSlash(opts.ProjectDir, dir),
			Manifest:    m,
			Resolution:  source.Resolution{Type: "directory", Directory: dir},
			ResolvedVia: "workspace",
			IsLocal:     true,
			LocalDir:    dir,
		}, nil
	}
	return nil, errors.New(errors.ErrCodePackageNotFound, "no workspace project %s satisfies %s", spec.Name, spec.Range)
}

func (r *Registry) requestLink(wanted manifest.WantedDependency, spec source.Spec, opts source.RequestOptions) (*source.Response, error) {
	dir := filepath.Join(opts.ProjectDir, filepath.FromSlash(spec.Path))
	m, ok := r.projects[dir]
	if !ok {
		m = &manifest.Manifest{Name: wanted.Alias, Version: "0.0.0"}
	}
	return &source.Response{
		ID:          "link:" + source.RelSlash(opts.ProjectDir, dir),
		Manifest:    m,
		Resolution:  source.Resolution{Type: "directory", Directory: dir},
		ResolvedVia: "local-directory",
		IsLocal:     true,
		LocalDir:    dir,
	}, nil
}

func (r *Registry) requestFile(spec source.Spec, opts source.RequestOptions) (*source.Response, error) {
	dir := filepath.Join(opts.ProjectDir, filepath.FromSlash(spec.Path))
	m, ok := r.projects[dir]
	if !ok {
		return nil, errors.New(errors.ErrCodeFileNotFound, "no package in directory %s", dir)
	}
	return r.injected(dir, m, opts)
}

func (r *Registry) injected(dir string, m *manifest.Manifest, opts source.RequestOptions) (*source.Response, error) {
	return &source.Response{
		ID:          "file:" + source.RelSlash(opts.LockfileDir, dir),
		Manifest:    m,
		Resolution:  source.Resolution{Type: "directory", Directory: source.RelSlash(opts.LockfileDir, dir)},
		ResolvedVia: "local-directory",
		LocalDir:    dir,
	}, nil
}

func (r *Registry) fetcher(id, sum string) source.FetchFunc {
	err := r.fetchErrs[id]
	return func(ctx context.Context) (source.FetchResult, error) {
		if err != nil {
			return source.FetchResult{}, err
		}
		if e := ctx.Err(); e != nil {
			return source.FetchResult{}, e
		}
		r.fetches.Add(1)
		return source.FetchResult{Integrity: sum, Size: int64(len(id))}, nil
	}
}

func integrity(id string) string {
	sum := sha512.Sum512([]byte(id))
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}
