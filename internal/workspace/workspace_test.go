package workspace

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/stackresolve/pkg/catalog"
	"github.com/matzehuels/stackresolve/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, Filename), `packages:
  - packages/*
  - apps/**
  - "!**/fixtures/**"
catalog:
  react: ^18.2.0
catalogs:
  legacy:
    react: ^17.0.2
patchedDependencies:
  lodash@4.17.21: patches/lodash.patch
`)
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"root","version":"0.0.0"}`)
	writeFile(t, filepath.Join(root, "packages/ui/package.json"), `{"name":"ui","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "packages/ui/node_modules/x/package.json"), `{"name":"x","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "apps/web/package.json"), `{"name":"web","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "apps/web/fixtures/app/package.json"), `{"name":"fixture","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "docs/package.json"), `{"name":"docs","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "patches/lodash.patch"), "--- a\n+++ b\n")
	return root
}

func TestLoad(t *testing.T) {
	root := testWorkspace(t)
	ws, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var ids []string
	for _, p := range ws.Projects {
		ids = append(ids, p.ID)
	}
	want := []string{".", "apps/web", "packages/ui"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("project ids = %v, want %v", ids, want)
	}
	if p, ok := ws.Project("packages/ui"); !ok || p.Manifest.Name != "ui" || p.Dir != filepath.Join(root, "packages", "ui") {
		t.Errorf("Project(packages/ui) = %+v, %v", p, ok)
	}
	if len(ws.Manifests) != 3 {
		t.Errorf("len(Manifests) = %d, want 3", len(ws.Manifests))
	}
}

func TestCatalogs(t *testing.T) {
	ws, err := Load(testWorkspace(t))
	if err != nil {
		t.Fatal(err)
	}
	got := ws.Catalogs()
	want := catalog.Catalogs{
		"default": {"react": "^18.2.0"},
		"legacy":  {"react": "^17.0.2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Catalogs() = %v, want %v", got, want)
	}
}

func TestPatches(t *testing.T) {
	ws, err := Load(testWorkspace(t))
	if err != nil {
		t.Fatal(err)
	}
	patches, err := ws.Patches()
	if err != nil {
		t.Fatalf("Patches() error = %v", err)
	}
	p, ok := patches["lodash@4.17.21"]
	if !ok || p.Path != "patches/lodash.patch" || p.Hash == "" {
		t.Errorf("Patches()[lodash@4.17.21] = %+v", p)
	}

	ws.File.PatchedDependencies["left-pad"] = "patches/missing.patch"
	if _, err := ws.Patches(); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Patches() error = %v, want %s", err, errors.ErrCodeFileNotFound)
	}
}

func TestLoadWithoutWorkspaceFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"solo","version":"1.0.0"}`)
	ws, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(ws.Projects) != 1 || ws.Projects[0].ID != "." {
		t.Errorf("Projects = %v, want only the root", ws.Projects)
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Load(empty) error = %v, want %s", err, errors.ErrCodeFileNotFound)
	}
}

func TestFind(t *testing.T) {
	root := testWorkspace(t)
	got, err := Find(filepath.Join(root, "packages", "ui"))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != root {
		t.Errorf("Find() = %q, want %q", got, root)
	}

	solo := t.TempDir()
	writeFile(t, filepath.Join(solo, "pkg", "package.json"), `{"name":"solo"}`)
	got, err = Find(filepath.Join(solo, "pkg"))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != filepath.Join(solo, "pkg") {
		t.Errorf("Find() = %q, want %q", got, filepath.Join(solo, "pkg"))
	}
}
