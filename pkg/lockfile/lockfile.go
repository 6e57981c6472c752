// Package lockfile reads and writes the YAML lockfile that records a
// resolved dependency graph.
//
// # Layout
//
//	lockfileVersion: "9.0"
//	catalogs:
//	  default:
//	    react: {specifier: ^18.2.0, version: 18.2.0}
//	importers:
//	  .:
//	    dependencies:
//	      ui: {specifier: ^1.0.0, version: 1.0.0(react@18.2.0)}
//	packages:
//	  ui@1.0.0(react@18.2.0):
//	    resolution: {integrity: sha512-...}
//	    peerDependencies: {react: ^18}
//	    dependencies: {react: 18.2.0}
//
// Dependency references use the short form produced by deppath.ToRef: the
// version plus suffixes when the alias names the package, otherwise the full
// dependency path.
package lockfile

import (
	"bytes"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/source"
)

// Filename is the lockfile name inside the lockfile directory.
const Filename = "stackresolve-lock.yaml"

// Version is the layout version written by this package.
const Version = "9.0"

// Lockfile is the resolved state of a workspace.
type Lockfile struct {
	LockfileVersion string                              `yaml:"lockfileVersion"`
	Catalogs        map[string]map[string]ResolvedEntry `yaml:"catalogs,omitempty"`
	Importers       map[string]*Importer                `yaml:"importers"`
	Packages        map[string]*PackageSnapshot         `yaml:"packages,omitempty"`
}

// ResolvedEntry pairs the specifier a user wrote with the reference it resolved to.
type ResolvedEntry struct {
	Specifier string `yaml:"specifier"`
	Version   string `yaml:"version"`
}

// Importer holds the direct dependencies of one project, keyed by alias.
type Importer struct {
	Dependencies         map[string]ResolvedEntry `yaml:"dependencies,omitempty"`
	DevDependencies      map[string]ResolvedEntry `yaml:"devDependencies,omitempty"`
	OptionalDependencies map[string]ResolvedEntry `yaml:"optionalDependencies,omitempty"`
}

// Entry returns the locked entry for alias from any dependency field.
func (im *Importer) Entry(alias string) (ResolvedEntry, bool) {
	if im == nil {
		return ResolvedEntry{}, false
	}
	for _, deps := range []map[string]ResolvedEntry{im.OptionalDependencies, im.Dependencies, im.DevDependencies} {
		if e, ok := deps[alias]; ok {
			return e, true
		}
	}
	return ResolvedEntry{}, false
}

// PeerDependencyMeta mirrors the manifest field of the same name.
type PeerDependencyMeta struct {
	Optional bool `yaml:"optional,omitempty"`
}

// PackageSnapshot is one resolved package node, keyed by dependency path.
type PackageSnapshot struct {
	Resolution                 source.Resolution             `yaml:"resolution"`
	Dependencies               map[string]string             `yaml:"dependencies,omitempty"`
	OptionalDependencies       map[string]string             `yaml:"optionalDependencies,omitempty"`
	PeerDependencies           map[string]string             `yaml:"peerDependencies,omitempty"`
	PeerDependenciesMeta       map[string]PeerDependencyMeta `yaml:"peerDependenciesMeta,omitempty"`
	TransitivePeerDependencies []string                      `yaml:"transitivePeerDependencies,omitempty"`
	Optional                   bool                          `yaml:"optional,omitempty"`
	Dev                        bool                          `yaml:"dev,omitempty"`
	Patched                    bool                          `yaml:"patched,omitempty"`
}

// Ref returns the reference stored for alias in the snapshot's dependencies.
func (s *PackageSnapshot) Ref(alias string) (string, bool) {
	if s == nil {
		return "", false
	}
	if ref, ok := s.Dependencies[alias]; ok {
		return ref, true
	}
	ref, ok := s.OptionalDependencies[alias]
	return ref, ok
}

// New returns an empty lockfile.
func New() *Lockfile {
	return &Lockfile{
		LockfileVersion: Version,
		Importers:       make(map[string]*Importer),
		Packages:        make(map[string]*PackageSnapshot),
	}
}

// Read loads the lockfile at path, or Filename inside path when it is a
// directory. A missing file yields (nil, nil).
func Read(path string) (*Lockfile, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, Filename)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a lockfile document.
func Parse(data []byte) (*Lockfile, error) {
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "parse lockfile")
	}
	if lf.LockfileVersion == "" {
		return nil, errors.New(errors.ErrCodeInvalidLockfile, "lockfile has no lockfileVersion")
	}
	if lf.Importers == nil {
		lf.Importers = make(map[string]*Importer)
	}
	if lf.Packages == nil {
		lf.Packages = make(map[string]*PackageSnapshot)
	}
	return &lf, nil
}

// Marshal encodes the lockfile with two-space indentation. Map keys are
// sorted by the encoder, so output is deterministic.
func Marshal(lf *Lockfile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write stores the lockfile at path atomically.
func Write(path string, lf *Lockfile) error {
	data, err := Marshal(lf)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
