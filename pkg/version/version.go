// Package version implements npm-style version range matching.
//
// Ranges are parsed with Masterminds/semver and memoized in a bounded LRU.
// Satisfies includes prereleases, so a peer provided at 18.3.0-rc.1
// satisfies ^18. MaxSatisfying only picks a prerelease when the range
// asks for one.
//
// # Specifiers
//
// Besides plain ranges, a few specifier forms are understood:
//
//	""          any version
//	"*"         any version
//	"latest"    any version (dist-tag; the source picks the concrete one)
//	"workspace:^1.0.0"  the range after the protocol prefix
package version

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// WorkspacePrefix marks a specifier that must be satisfied by a workspace project.
	WorkspacePrefix = "workspace:"

	constraintCacheSize = 1024
)

var constraints *lru.Cache[string, *semver.Constraints]

func init() {
	c, err := lru.New[string, *semver.Constraints](constraintCacheSize)
	if err != nil {
		panic(err)
	}
	constraints = c
}

// Pin controls how a resolved version is written back as a specifier.
type Pin string

const (
	PinMajor Pin = "major" // ^1.2.3
	PinMinor Pin = "minor" // ~1.2.3
	PinPatch Pin = "patch" // 1.2.3
	PinNone  Pin = "none"  // *
)

// StripWorkspace removes the workspace protocol from a specifier.
func StripWorkspace(spec string) string {
	return strings.TrimPrefix(spec, WorkspacePrefix)
}

// IsAny reports whether spec accepts every version.
func IsAny(spec string) bool {
	spec = strings.TrimSpace(StripWorkspace(spec))
	return spec == "" || spec == "*" || spec == "x" || spec == "latest"
}

// Valid reports whether v parses as a semantic version.
func Valid(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}

// ValidRange reports whether spec parses as a range.
func ValidRange(spec string) bool {
	if IsAny(spec) {
		return true
	}
	_, err := constraint(spec)
	return err == nil
}

// Satisfies reports whether version v is within spec, including prereleases.
// A prerelease is compared against the range bounds as is, so 18.3.0-rc.1
// satisfies ^18 but 18.0.0-rc.1 does not satisfy >=18.0.0.
// Unparseable versions or ranges never match, except that a range equal to
// the version string matches exactly (tags, git refs).
func Satisfies(v, spec string) bool {
	return satisfies(v, spec, true)
}

func satisfies(v, spec string, includePre bool) bool {
	spec = strings.TrimSpace(StripWorkspace(spec))
	if IsAny(spec) {
		if includePre {
			return true
		}
		ver, err := semver.NewVersion(v)
		return err != nil || ver.Prerelease() == ""
	}
	if spec == v {
		return true
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	c, err := constraint(spec)
	if err != nil {
		return false
	}
	if includePre {
		cc := *c
		cc.IncludePrerelease = true
		return cc.Check(ver)
	}
	return c.Check(ver)
}

// MaxSatisfying returns the highest version in versions that satisfies spec.
// Prereleases are only candidates when the range names a prerelease itself.
func MaxSatisfying(versions []string, spec string) (string, bool) {
	var (
		best    *semver.Version
		bestRaw string
	)
	for _, raw := range versions {
		if !satisfies(raw, spec, false) {
			continue
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw, best != nil
}

// Sort orders versions ascending. Unparseable entries sort first, lexically.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, ei := semver.NewVersion(versions[i])
		vj, ej := semver.NewVersion(versions[j])
		switch {
		case ei != nil && ej != nil:
			return versions[i] < versions[j]
		case ei != nil:
			return true
		case ej != nil:
			return false
		}
		return vi.LessThan(vj)
	})
}

// Compare returns -1, 0 or 1. Unparseable versions compare lexically.
func Compare(a, b string) int {
	va, ea := semver.NewVersion(a)
	vb, eb := semver.NewVersion(b)
	if ea != nil || eb != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

// PinnedSpec renders a specifier for a resolved version under the given pin mode.
// Prerelease versions are always pinned exactly.
func PinnedSpec(v string, pin Pin) string {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	if ver.Prerelease() != "" {
		return ver.Original()
	}
	switch pin {
	case PinNone:
		return "*"
	case PinPatch:
		return ver.Original()
	case PinMinor:
		return "~" + ver.Original()
	default:
		return "^" + ver.Original()
	}
}

// Intersect combines ranges into one range that requires all of them.
// It reports false when a range is invalid or the ranges cannot be joined.
func Intersect(ranges []string) (string, bool) {
	parts := make([]string, 0, len(ranges))
	seen := make(map[string]bool, len(ranges))
	for _, r := range ranges {
		r = strings.TrimSpace(StripWorkspace(r))
		if IsAny(r) || seen[r] {
			continue
		}
		if _, err := constraint(r); err != nil {
			return "", false
		}
		seen[r] = true
		parts = append(parts, r)
	}
	if len(parts) == 0 {
		return "*", true
	}
	if len(parts) == 1 {
		return parts[0], true
	}
	for _, p := range parts {
		// Disjunctions cannot be joined by a plain space.
		if strings.Contains(p, "||") {
			return "", false
		}
	}
	joined := strings.Join(parts, " ")
	if _, err := constraint(joined); err != nil {
		return "", false
	}
	return joined, true
}

func constraint(spec string) (*semver.Constraints, error) {
	if c, ok := constraints.Get(spec); ok {
		return c, nil
	}
	c, err := semver.NewConstraint(spec)
	if err != nil {
		return nil, err
	}
	constraints.Add(spec, c)
	return c, nil
}
