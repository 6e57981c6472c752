// Package deppath encodes and decodes dependency paths.
//
// A dependency path (DepPath) is the final identity of a resolved package
// node: the package id, an optional patch hash and an optional suffix
// listing the peer dependencies that were resolved into it:
//
//	react-dom@18.2.0(react@18.2.0)
//	ui@1.0.0(patch_hash=abc)(react@18.2.0)
//	plugin@2.0.0(core@2.0.0(plugin@2.0.0))
//
// Suffixes longer than a configurable limit are replaced by a BLAKE3
// digest so directory names derived from them stay bounded.
package deppath

import (
	"encoding/base32"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// DefaultMaxLength is the longest peer suffix written verbatim.
const DefaultMaxLength = 1000

const patchHashMarker = "(patch_hash="

var hashEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// PeerID identifies a resolved peer inside a suffix. Either ID is set
// (a concrete DepPath) or Name and Version are (a cycle placeholder).
type PeerID struct {
	ID      string
	Name    string
	Version string
}

func (p PeerID) String() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name + "@" + p.Version
}

// PeerGraphHash builds the suffix for a set of resolved peers. The peers are
// rendered, sorted and joined, so the result does not depend on input order.
// An empty set yields an empty suffix.
func PeerGraphHash(peers []PeerID, maxLength int) string {
	if len(peers) == 0 {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.String()
	}
	sort.Strings(ids)
	dirName := strings.Join(ids, ")(")
	if len(dirName) > maxLength {
		dirName = ShortHash(dirName)
	}
	return "(" + dirName + ")"
}

// ShortHash returns a 32-character lowercase base32 BLAKE3 digest of s.
func ShortHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return strings.ToLower(hashEncoding.EncodeToString(sum[:]))[:32]
}

// WithPatchHash appends a patch hash to a package id.
func WithPatchHash(pkgID, patchHash string) string {
	if patchHash == "" {
		return pkgID
	}
	return pkgID + patchHashMarker + patchHash + ")"
}

// LinkedPeerID renders the peer id of a directory-linked provider.
func LinkedPeerID(name, linkedDir string) string {
	dir := strings.ReplaceAll(linkedDir, "\\", "/")
	return name + "@" + strings.ReplaceAll(dir, "/", "+")
}

// SuffixIndex locates the patch hash and the peer suffix in a DepPath.
// Each index is -1 when that part is absent.
func SuffixIndex(depPath string) (patchIdx, peersIdx int) {
	if !strings.HasSuffix(depPath, ")") {
		return -1, -1
	}
	open := 1
	for i := len(depPath) - 2; i >= 0; i-- {
		switch depPath[i] {
		case '(':
			open--
		case ')':
			open++
		default:
			if open != 0 {
				continue
			}
			rest := depPath[i+1:]
			if strings.HasPrefix(rest, patchHashMarker) {
				end := strings.IndexByte(rest, ')')
				if end+1 < len(rest) {
					return i + 1, i + 1 + end + 1
				}
				return i + 1, -1
			}
			return -1, i + 1
		}
	}
	return -1, -1
}

// RemoveSuffix strips both the patch hash and the peer suffix.
func RemoveSuffix(depPath string) string {
	patchIdx, peersIdx := SuffixIndex(depPath)
	switch {
	case patchIdx != -1:
		return depPath[:patchIdx]
	case peersIdx != -1:
		return depPath[:peersIdx]
	}
	return depPath
}

// PkgIDWithPatchHash strips the peer suffix but keeps the patch hash.
func PkgIDWithPatchHash(depPath string) string {
	if _, peersIdx := SuffixIndex(depPath); peersIdx != -1 {
		return depPath[:peersIdx]
	}
	return depPath
}

// Parsed is a decomposed DepPath.
type Parsed struct {
	Name        string
	Version     string
	PatchHash   string
	PeersSuffix string
}

// Parse splits a DepPath of the form name@version[(patch_hash=..)][(peers)].
// It reports false for ids that are not registry packages (link:, file:).
func Parse(depPath string) (Parsed, bool) {
	var p Parsed
	patchIdx, peersIdx := SuffixIndex(depPath)
	base := RemoveSuffix(depPath)
	if peersIdx != -1 {
		p.PeersSuffix = depPath[peersIdx:]
	}
	if patchIdx != -1 {
		end := len(depPath)
		if peersIdx != -1 {
			end = peersIdx
		}
		p.PatchHash = strings.TrimSuffix(depPath[patchIdx+len(patchHashMarker):end], ")")
	}
	at := strings.LastIndexByte(base, '@')
	if at <= 0 || strings.Contains(base[:at], ":") {
		return Parsed{}, false
	}
	p.Name = base[:at]
	p.Version = base[at+1:]
	return p, p.Version != ""
}

// Name returns the package name of a DepPath, or "" if it cannot be parsed.
func Name(depPath string) string {
	p, ok := Parse(depPath)
	if !ok {
		return ""
	}
	return p.Name
}

// ToRef renders the reference stored for alias in a dependency map: the
// bare version plus suffixes when alias names the same package, otherwise
// the full DepPath.
func ToRef(depPath, alias string) string {
	if strings.HasPrefix(depPath, "link:") {
		return depPath
	}
	p, ok := Parse(depPath)
	if !ok || p.Name != alias {
		return depPath
	}
	return depPath[len(p.Name)+1:]
}

// FromRef is the inverse of ToRef.
func FromRef(ref, alias string) string {
	if strings.HasPrefix(ref, "link:") {
		return ref
	}
	if _, ok := Parse(ref); ok {
		return ref
	}
	return alias + "@" + ref
}
