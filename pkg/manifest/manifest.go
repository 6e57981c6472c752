// Package manifest reads package.json manifests and derives the list of
// dependencies a project wants installed.
//
// Only the fields the resolver inspects are modelled; everything else in a
// package.json is ignored.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/version"
)

// Filename is the manifest file name inside a project directory.
const Filename = "package.json"

// PeerDependencyMeta is an entry of peerDependenciesMeta.
type PeerDependencyMeta struct {
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// DependencyMeta is an entry of dependenciesMeta.
type DependencyMeta struct {
	Injected bool `json:"injected,omitempty" yaml:"injected,omitempty"`
}

// Manifest is the subset of package.json used during resolution.
type Manifest struct {
	Name                 string                        `json:"name,omitempty" yaml:"name,omitempty"`
	Version              string                        `json:"version,omitempty" yaml:"version,omitempty"`
	Dependencies         map[string]string             `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	DevDependencies      map[string]string             `json:"devDependencies,omitempty" yaml:"devDependencies,omitempty"`
	OptionalDependencies map[string]string             `json:"optionalDependencies,omitempty" yaml:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string             `json:"peerDependencies,omitempty" yaml:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerDependencyMeta `json:"peerDependenciesMeta,omitempty" yaml:"peerDependenciesMeta,omitempty"`
	DependenciesMeta     map[string]DependencyMeta     `json:"dependenciesMeta,omitempty" yaml:"dependenciesMeta,omitempty"`
	OS                   []string                      `json:"os,omitempty" yaml:"os,omitempty"`
	CPU                  []string                      `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Deprecated           string                        `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// Read loads a manifest from a package.json file or a directory containing one.
// Hidden files are rejected.
func Read(path string) (*Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, Filename)
	}
	if err := errors.ValidateManifestFilename(filepath.Base(path)); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "manifest not found: %s", path)
		}
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	return m, nil
}

// Parse decodes a package.json document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsLeaf reports whether the package has no dependencies of any kind and
// no peer dependency metadata.
func (m *Manifest) IsLeaf() bool {
	return len(m.Dependencies) == 0 &&
		len(m.OptionalDependencies) == 0 &&
		len(m.PeerDependencies) == 0 &&
		m.PeerDependenciesMeta == nil
}

// ID returns name@version.
func (m *Manifest) ID() string {
	return m.Name + "@" + m.Version
}

// WantedDependency is a dependency requested by a project or a package.
type WantedDependency struct {
	Alias         string
	Spec          string
	Dev           bool
	Optional      bool
	Injected      bool
	PinnedVersion version.Pin
}

func (w WantedDependency) String() string {
	if w.Spec == "" {
		return w.Alias
	}
	return w.Alias + "@" + w.Spec
}

// WantedOptions selects the dependency fields to include.
type WantedOptions struct {
	IncludeDev bool // include devDependencies (projects only)
}

// WantedDependencies lists the dependencies declared by m, sorted by alias.
// An alias declared in several fields takes its specifier from the first of
// optionalDependencies, dependencies and devDependencies.
func WantedDependencies(m *Manifest, opts WantedOptions) []WantedDependency {
	byAlias := make(map[string]WantedDependency)
	add := func(deps map[string]string, dev, optional bool) {
		for alias, spec := range deps {
			if _, ok := byAlias[alias]; ok {
				continue
			}
			byAlias[alias] = WantedDependency{
				Alias:         alias,
				Spec:          spec,
				Dev:           dev,
				Optional:      optional,
				Injected:      m.DependenciesMeta[alias].Injected,
				PinnedVersion: GuessPin(spec),
			}
		}
	}
	add(m.OptionalDependencies, false, true)
	add(m.Dependencies, false, false)
	if opts.IncludeDev {
		add(m.DevDependencies, true, false)
	}

	out := make([]WantedDependency, 0, len(byAlias))
	for _, w := range byAlias {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// GuessPin infers the pin mode from an existing specifier.
func GuessPin(spec string) version.Pin {
	spec = strings.TrimSpace(version.StripWorkspace(spec))
	switch {
	case spec == "" || spec == "latest":
		return version.PinMajor
	case spec == "*":
		return version.PinNone
	case strings.HasPrefix(spec, "^"):
		return version.PinMajor
	case strings.HasPrefix(spec, "~"):
		return version.PinMinor
	case version.Valid(spec):
		return version.PinPatch
	}
	return ""
}

// AllDependencyNames returns every alias declared in dependencies,
// devDependencies and optionalDependencies.
func AllDependencyNames(m *Manifest) []string {
	seen := make(map[string]bool)
	for _, deps := range []map[string]string{m.Dependencies, m.DevDependencies, m.OptionalDependencies} {
		for alias := range deps {
			seen[alias] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
