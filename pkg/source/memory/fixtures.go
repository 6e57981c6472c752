package memory

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/manifest"
)

// Fixtures is the YAML layout accepted by [Load]:
//
//	packages:
//	  - name: react
//	    version: 18.2.0
//	  - name: react-dom
//	    version: 18.2.0
//	    peerDependencies: {react: ^18.2.0}
//	tags:
//	  react: {next: 19.0.0-rc.1}
//	projects:
//	  packages/ui:
//	    name: ui
//	    version: 1.0.0
type Fixtures struct {
	Packages []*manifest.Manifest          `yaml:"packages"`
	Tags     map[string]map[string]string  `yaml:"tags,omitempty"`
	Projects map[string]*manifest.Manifest `yaml:"projects,omitempty"`
}

// Load reads a fixtures file. Project directories are relative to root.
func Load(path, root string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "fixtures not found: %s", path)
		}
		return nil, err
	}
	return Parse(data, root)
}

// Parse decodes fixtures from YAML.
func Parse(data []byte, root string) (*Registry, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse fixtures")
	}
	r := New()
	for _, m := range fx.Packages {
		if m == nil || m.Name == "" || m.Version == "" {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "fixture package needs name and version")
		}
		r.Add(m)
	}
	for name, tags := range fx.Tags {
		for tag, v := range tags {
			r.Tag(name, tag, v)
		}
	}
	for dir, m := range fx.Projects {
		r.AddProject(filepath.Join(root, filepath.FromSlash(dir)), m)
	}
	return r, nil
}
