package npm

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/resolve"
	"github.com/matzehuels/stackresolve/pkg/source"
)

type fakeRegistry struct {
	*httptest.Server
	packuments map[string]*packument
	tarballs   map[string][]byte
	requests   atomic.Int32
}

func sri(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		packuments: make(map[string]*packument),
		tarballs:   make(map[string][]byte),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	if data, ok := f.tarballs[r.URL.Path]; ok {
		w.Write(data)
		return
	}
	f.requests.Add(1)
	name := strings.TrimPrefix(r.URL.Path, "/")
	doc, ok := f.packuments[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	json.NewEncoder(w).Encode(doc)
}

// publish adds name@v with the given manifest fields and a tarball.
func (f *fakeRegistry) publish(m manifest.Manifest) {
	doc, ok := f.packuments[m.Name]
	if !ok {
		doc = &packument{Name: m.Name, DistTags: map[string]string{}, Versions: map[string]*packageVersion{}}
		f.packuments[m.Name] = doc
	}
	path := "/" + m.Name + "/-/" + m.Name + "-" + m.Version + ".tgz"
	data := []byte("tarball of " + m.ID())
	f.tarballs[path] = data
	doc.Versions[m.Version] = &packageVersion{
		Manifest: m,
		Dist:     dist{Tarball: f.URL + path, Integrity: sri(data)},
	}
}

func testRegistry(t *testing.T) *fakeRegistry {
	f := newFakeRegistry(t)
	f.publish(manifest.Manifest{Name: "react", Version: "17.0.2"})
	f.publish(manifest.Manifest{Name: "react", Version: "18.2.0"})
	f.publish(manifest.Manifest{Name: "react", Version: "18.3.0-canary.1"})
	f.packuments["react"].DistTags["latest"] = "18.2.0"
	f.packuments["react"].DistTags["canary"] = "18.3.0-canary.1"
	f.publish(manifest.Manifest{
		Name:             "ui",
		Version:          "1.0.0",
		Dependencies:     map[string]string{"react-is": "^18"},
		PeerDependencies: map[string]string{"react": "^18.0.0"},
	})
	f.publish(manifest.Manifest{Name: "react-is", Version: "18.2.0"})
	f.publish(manifest.Manifest{Name: "fsevents", Version: "2.3.3", OS: []string{"darwin"}})
	return f
}

func newSource(f *fakeRegistry, opts Options) *Source {
	opts.Registry = f.URL
	opts.RetryDelay = time.Millisecond
	if opts.OS == "" {
		opts.OS, opts.CPU = "linux", "x64"
	}
	return New(opts)
}

func request(t *testing.T, s *Source, alias, spec string, opts source.RequestOptions) *source.Response {
	t.Helper()
	res, err := s.Request(context.Background(), manifest.WantedDependency{Alias: alias, Spec: spec}, opts)
	if err != nil {
		t.Fatalf("Request(%s@%s) error = %v", alias, spec, err)
	}
	return res
}

func TestRequestVersionSelection(t *testing.T) {
	f := testRegistry(t)
	s := newSource(f, Options{})

	tests := []struct {
		spec string
		want string
	}{
		{"^17", "react@17.0.2"},
		{"^18", "react@18.2.0"},
		{"latest", "react@18.2.0"},
		{"canary", "react@18.3.0-canary.1"},
		{"", "react@18.2.0"},
		{">=18.3.0-0", "react@18.3.0-canary.1"},
		{"npm:react@17", "react@17.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			res := request(t, s, "react", tt.spec, source.RequestOptions{})
			if res.ID != tt.want {
				t.Errorf("ID = %q, want %q", res.ID, tt.want)
			}
			if res.Fetch == nil {
				t.Error("Fetch = nil")
			}
		})
	}
	if got := f.requests.Load(); got != 1 {
		t.Errorf("registry requests = %d, want 1", got)
	}
}

func TestRequestPrefersStable(t *testing.T) {
	f := newFakeRegistry(t)
	f.publish(manifest.Manifest{Name: "lib", Version: "1.0.0"})
	f.publish(manifest.Manifest{Name: "lib", Version: "1.1.0-beta.1"})
	f.publish(manifest.Manifest{Name: "lib", Version: "2.0.0"})
	f.packuments["lib"].DistTags["latest"] = "2.0.0"

	res := request(t, newSource(f, Options{}), "lib", "^1.0.0", source.RequestOptions{})
	if res.ID != "lib@1.0.0" {
		t.Errorf("ID = %q, want lib@1.0.0", res.ID)
	}
}

func TestRequestCurrentPkg(t *testing.T) {
	s := newSource(testRegistry(t), Options{})
	cur := &source.CurrentPkg{ID: "react@17.0.2", Name: "react", Version: "17.0.2"}

	if res := request(t, s, "react", ">=17", source.RequestOptions{CurrentPkg: cur}); res.ID != "react@17.0.2" {
		t.Errorf("ID = %q, want locked react@17.0.2", res.ID)
	}
	if res := request(t, s, "react", "^18", source.RequestOptions{CurrentPkg: cur}); res.ID != "react@18.2.0" {
		t.Errorf("ID = %q, want react@18.2.0 when lock no longer satisfies", res.ID)
	}
	if res := request(t, s, "react", ">=17", source.RequestOptions{CurrentPkg: cur, Update: true}); res.ID != "react@18.2.0" {
		t.Errorf("ID with Update = %q, want react@18.2.0", res.ID)
	}
}

func TestRequestErrors(t *testing.T) {
	s := newSource(testRegistry(t), Options{})
	tests := []struct {
		name   string
		wanted manifest.WantedDependency
		want   errors.Code
	}{
		{"unknown package", manifest.WantedDependency{Alias: "nope", Spec: "1"}, errors.ErrCodePackageNotFound},
		{"no matching version", manifest.WantedDependency{Alias: "react", Spec: "^99"}, errors.ErrCodeVersionNotFound},
		{"invalid name", manifest.WantedDependency{Alias: "../etc", Spec: "1"}, errors.ErrCodeInvalidPackage},
		{"no local source", manifest.WantedDependency{Alias: "ui", Spec: "workspace:*"}, errors.ErrCodeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Request(context.Background(), tt.wanted, source.RequestOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Request() error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestRequestUnsupportedPlatform(t *testing.T) {
	s := newSource(testRegistry(t), Options{})
	res := request(t, s, "fsevents", "^2", source.RequestOptions{})
	if res.Unsupported == "" {
		t.Error("Unsupported = \"\", want a reason on linux")
	}

	mac := newSource(testRegistry(t), Options{OS: "darwin", CPU: "arm64"})
	if res := request(t, mac, "fsevents", "^2", source.RequestOptions{}); res.Unsupported != "" {
		t.Errorf("Unsupported = %q on darwin", res.Unsupported)
	}
}

func TestPackumentCache(t *testing.T) {
	f := testRegistry(t)
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	request(t, newSource(f, Options{Cache: fc}), "react", "^18", source.RequestOptions{})
	request(t, newSource(f, Options{Cache: fc}), "react", "^18", source.RequestOptions{})
	if got := f.requests.Load(); got != 1 {
		t.Errorf("registry requests = %d, want 1 with a shared cache", got)
	}
	request(t, newSource(f, Options{Cache: fc, Refresh: true}), "react", "^18", source.RequestOptions{})
	if got := f.requests.Load(); got != 2 {
		t.Errorf("registry requests = %d, want 2 after refresh", got)
	}
}

func TestFetch(t *testing.T) {
	f := testRegistry(t)
	storeDir := t.TempDir()
	s := newSource(f, Options{StoreDir: storeDir})

	res := request(t, s, "react", "^18", source.RequestOptions{})
	got, err := res.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Integrity != res.Resolution.Integrity || got.Size == 0 {
		t.Errorf("Fetch() = %+v", got)
	}
	entries, _ := os.ReadDir(storeDir)
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".tgz" {
		t.Errorf("store entries = %v, want one tarball", entries)
	}

	if res := request(t, s, "react", "^18", source.RequestOptions{SkipFetch: true}); res.Fetch != nil {
		t.Error("Fetch != nil with SkipFetch")
	}
}

func TestFetchIntegrityMismatch(t *testing.T) {
	f := testRegistry(t)
	f.packuments["react"].Versions["17.0.2"].Dist.Integrity = sri([]byte("something else"))
	s := newSource(f, Options{})

	res := request(t, s, "react", "^17", source.RequestOptions{})
	if _, err := res.Fetch(context.Background()); !errors.Is(err, errors.ErrCodeIntegrity) {
		t.Errorf("Fetch() error = %v, want %s", err, errors.ErrCodeIntegrity)
	}
}

func TestResolveAgainstRegistry(t *testing.T) {
	s := newSource(testRegistry(t), Options{})
	project := &resolve.Project{
		ID:       ".",
		Manifest: &manifest.Manifest{Name: "app", Dependencies: map[string]string{"ui": "^1", "react": "^18"}},
	}
	res, err := resolve.ResolveDependencyTree(context.Background(), []*resolve.Project{project}, resolve.Options{
		Source:      s,
		LockfileDir: "/ws",
	})
	if err != nil {
		t.Fatalf("ResolveDependencyTree() error = %v", err)
	}
	if err := res.WaitTillAllFetchingsFinish(context.Background()); err != nil {
		t.Fatalf("WaitTillAllFetchingsFinish() error = %v", err)
	}
	lf := res.Lockfile()
	if got := lf.Importers["."].Dependencies["ui"].Version; got != "1.0.0(react@18.2.0)" {
		t.Errorf("ui version = %q, want 1.0.0(react@18.2.0)", got)
	}
	if _, ok := lf.Packages["react-is@18.2.0"]; !ok {
		t.Error("react-is@18.2.0 missing from packages")
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		list    []string
		current string
		want    bool
	}{
		{nil, "linux", true},
		{[]string{"darwin"}, "linux", false},
		{[]string{"darwin", "linux"}, "linux", true},
		{[]string{"!win32"}, "linux", true},
		{[]string{"!win32"}, "win32", false},
		{[]string{"any"}, "linux", true},
	}
	for _, tt := range tests {
		if got := allowed(tt.list, tt.current); got != tt.want {
			t.Errorf("allowed(%v, %q) = %v, want %v", tt.list, tt.current, got, tt.want)
		}
	}
}

func TestEscapeName(t *testing.T) {
	if got := escapeName("@types/node"); got != "@types%2fnode" {
		t.Errorf("escapeName() = %q, want @types%%2fnode", got)
	}
	if got := escapeName("react"); got != "react" {
		t.Errorf("escapeName() = %q, want react", got)
	}
}
