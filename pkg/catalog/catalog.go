// Package catalog implements the catalog protocol: a dependency specifier of
// the form "catalog:" or "catalog:<name>" that refers to a version range
// declared once for the whole workspace.
//
//	catalogs := catalog.Catalogs{"default": {"react": "^18.2.0"}}
//	res, err := catalog.Resolve(catalogs, "react", "catalog:")
//	// res.Kind == catalog.Found, res.Specifier == "^18.2.0"
package catalog

import (
	"strings"

	"github.com/matzehuels/stackresolve/pkg/errors"
)

const (
	// Protocol is the specifier prefix.
	Protocol = "catalog:"

	// DefaultName is the catalog used by a bare "catalog:" specifier.
	DefaultName = "default"
)

// Catalogs maps catalog name to alias to specifier.
type Catalogs map[string]map[string]string

// Kind is the outcome of a lookup.
type Kind int

const (
	// Unused means the specifier does not use the catalog protocol.
	Unused Kind = iota
	// Found means the specifier was replaced by a catalog entry.
	Found
)

// Result is a successful lookup.
type Result struct {
	Kind        Kind
	CatalogName string
	Specifier   string
}

// IsCatalogSpec reports whether spec uses the catalog protocol.
func IsCatalogSpec(spec string) bool {
	return strings.HasPrefix(spec, Protocol)
}

// Name extracts the catalog name from a catalog specifier.
func Name(spec string) string {
	name := strings.TrimSpace(strings.TrimPrefix(spec, Protocol))
	if name == "" {
		return DefaultName
	}
	return name
}

// Resolve looks up the catalog entry for alias. Specifiers that do not use
// the protocol resolve to Unused. A missing entry, an entry that itself
// uses the catalog protocol, or an entry using an unsupported protocol is a
// CATALOG_MISCONFIGURED error.
func Resolve(catalogs Catalogs, alias, spec string) (Result, error) {
	if !IsCatalogSpec(spec) {
		return Result{Kind: Unused}, nil
	}
	name := Name(spec)

	entry, ok := catalogs[name][alias]
	if !ok {
		return Result{}, errors.New(errors.ErrCodeCatalogMisconfigured,
			"no catalog entry %q was found for catalog %q", alias, name)
	}
	if IsCatalogSpec(entry) {
		return Result{}, errors.New(errors.ErrCodeCatalogMisconfigured,
			"found invalid catalog entry using the catalog protocol recursively; the entry for %q in catalog %q is invalid", alias, name)
	}
	for _, protocol := range []string{"workspace:", "link:", "file:"} {
		if strings.HasPrefix(entry, protocol) {
			return Result{}, errors.New(errors.ErrCodeCatalogMisconfigured,
				"the entry for %q in catalog %q declares a dependency using the %q protocol, which is not supported in catalogs", alias, name, strings.TrimSuffix(protocol, ":"))
		}
	}
	return Result{Kind: Found, CatalogName: name, Specifier: entry}, nil
}
