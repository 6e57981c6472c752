package source

import (
	"path/filepath"
	"strings"
)

// SpecKind classifies a dependency specifier.
type SpecKind int

const (
	SpecRegistry SpecKind = iota
	SpecWorkspace
	SpecLink
	SpecFile
)

func (k SpecKind) String() string {
	switch k {
	case SpecWorkspace:
		return "workspace"
	case SpecLink:
		return "link"
	case SpecFile:
		return "file"
	}
	return "registry"
}

// Spec is a parsed dependency specifier.
type Spec struct {
	Kind  SpecKind
	Name  string // package name; differs from the alias for npm: aliases
	Range string // version range for registry and workspace specs
	Path  string // directory for link: and file: specs
}

// ParseSpec parses the specifier of a dependency declared under alias.
//
//	^1.0.0               registry, name = alias
//	npm:react@^18        registry, name = react
//	workspace:^1.0.0     workspace project named alias
//	link:../ui           linked directory
//	file:../ui           injected directory
func ParseSpec(alias, spec string) Spec {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.HasPrefix(spec, "workspace:"):
		return Spec{Kind: SpecWorkspace, Name: alias, Range: strings.TrimPrefix(spec, "workspace:")}
	case strings.HasPrefix(spec, "link:"):
		return Spec{Kind: SpecLink, Name: alias, Path: strings.TrimPrefix(spec, "link:")}
	case strings.HasPrefix(spec, "file:"):
		return Spec{Kind: SpecFile, Name: alias, Path: strings.TrimPrefix(spec, "file:")}
	case strings.HasPrefix(spec, "npm:"):
		rest := strings.TrimPrefix(spec, "npm:")
		at := strings.LastIndexByte(rest, '@')
		if at <= 0 {
			return Spec{Kind: SpecRegistry, Name: rest, Range: "latest"}
		}
		return Spec{Kind: SpecRegistry, Name: rest[:at], Range: rest[at+1:]}
	}
	if spec == "" {
		spec = "latest"
	}
	return Spec{Kind: SpecRegistry, Name: alias, Range: spec}
}

// RelSlash returns target relative to base with forward slashes. When no
// relative path exists, target itself is returned.
func RelSlash(base, target string) string {
	if base == "" {
		return filepath.ToSlash(target)
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
