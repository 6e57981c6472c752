package npm

import (
	"github.com/matzehuels/stackresolve/pkg/manifest"
)

// packument is the abbreviated install metadata of one package.
type packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]*packageVersion `json:"versions"`
}

type packageVersion struct {
	manifest.Manifest
	Dist dist `json:"dist"`
}

type dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// integrity returns the SRI string of the tarball. Old packages only
// publish a hex SHA-1.
func (d dist) integrity() string {
	if d.Integrity != "" {
		return d.Integrity
	}
	if d.Shasum != "" {
		return "sha1-" + hexToBase64(d.Shasum)
	}
	return ""
}
