package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/version"
)

const samplePackageJSON = `{
  "name": "app",
  "version": "1.0.0",
  "dependencies": {
    "react": "^18.2.0",
    "ui": "workspace:*",
    "shared": "file:../shared"
  },
  "devDependencies": {
    "typescript": "~5.4.0",
    "react": "18.2.0"
  },
  "optionalDependencies": {
    "fsevents": "2.3.3"
  },
  "dependenciesMeta": {
    "shared": {"injected": true}
  }
}`

func TestRead(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Filename), []byte(samplePackageJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Read(dir)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if m.Name != "app" || m.Version != "1.0.0" {
		t.Errorf("Read() = %s@%s, want app@1.0.0", m.Name, m.Version)
	}
	if m.ID() != "app@1.0.0" {
		t.Errorf("ID() = %q, want %q", m.ID(), "app@1.0.0")
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope", Filename))
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Read() error = %v, want %s", err, errors.ErrCodeFileNotFound)
	}
}

func TestReadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Read(path)
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("Read() error = %v, want %s", err, errors.ErrCodeInvalidManifest)
	}
}

func TestReadHiddenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".package.json")
	if err := os.WriteFile(path, []byte(samplePackageJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Read(path)
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("Read() error = %v, want %s", err, errors.ErrCodeInvalidManifest)
	}
}

func TestWantedDependencies(t *testing.T) {
	m, err := Parse([]byte(samplePackageJSON))
	if err != nil {
		t.Fatal(err)
	}

	got := WantedDependencies(m, WantedOptions{IncludeDev: true})
	want := []WantedDependency{
		{Alias: "fsevents", Spec: "2.3.3", Optional: true, PinnedVersion: version.PinPatch},
		{Alias: "react", Spec: "^18.2.0", PinnedVersion: version.PinMajor},
		{Alias: "shared", Spec: "file:../shared", Injected: true},
		{Alias: "typescript", Spec: "~5.4.0", Dev: true, PinnedVersion: version.PinMinor},
		{Alias: "ui", Spec: "workspace:*", PinnedVersion: version.PinNone},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WantedDependencies() =\n%+v\nwant\n%+v", got, want)
	}

	prodOnly := WantedDependencies(m, WantedOptions{})
	if len(prodOnly) != 4 {
		t.Errorf("len(WantedDependencies(prod)) = %d, want 4", len(prodOnly))
	}
}

func TestIsLeaf(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
		want bool
	}{
		{"empty", Manifest{Name: "a"}, true},
		{"deps", Manifest{Dependencies: map[string]string{"b": "1"}}, false},
		{"optional", Manifest{OptionalDependencies: map[string]string{"b": "1"}}, false},
		{"peers", Manifest{PeerDependencies: map[string]string{"b": "1"}}, false},
		{"peer meta only", Manifest{PeerDependenciesMeta: map[string]PeerDependencyMeta{}}, false},
		{"dev only", Manifest{DevDependencies: map[string]string{"b": "1"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsLeaf(); got != tt.want {
				t.Errorf("IsLeaf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllDependencyNames(t *testing.T) {
	m, _ := Parse([]byte(samplePackageJSON))
	got := AllDependencyNames(m)
	want := []string{"fsevents", "react", "shared", "typescript", "ui"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllDependencyNames() = %v, want %v", got, want)
	}
}
