package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/source/memory"
)

func testRegistry() *memory.Registry {
	return memory.New().
		Add(&manifest.Manifest{Name: "react", Version: "17.0.2"}).
		Add(&manifest.Manifest{Name: "react", Version: "18.2.0"}).
		Add(&manifest.Manifest{
			Name:             "ui",
			Version:          "1.0.0",
			PeerDependencies: map[string]string{"react": "^18.0.0"},
		})
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Registry) {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := testRegistry()
	srv := httptest.NewServer(New(Options{Source: reg, Registry: "memory", Cache: fc, Version: "test"}).Router())
	t.Cleanup(srv.Close)
	return srv, reg
}

func post(t *testing.T, srv *httptest.Server, req ResolveRequest) (int, ResolveResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+"/v1/resolve", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out ResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(data)
}

func appRequest() ResolveRequest {
	return ResolveRequest{Projects: map[string]*manifest.Manifest{
		".": {Name: "app", Dependencies: map[string]string{"react": "^18.0.0", "ui": "^1.0.0"}},
	}}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	status, body := get(t, srv.URL+"/healthz")
	if status != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", status)
	}
	if !strings.Contains(body, `"version":"test"`) {
		t.Errorf("GET /healthz body = %s", body)
	}
}

func TestResolve(t *testing.T) {
	srv, reg := newTestServer(t)

	status, resp := post(t, srv, appRequest())
	if status != http.StatusOK {
		t.Fatalf("POST /v1/resolve = %d (%s), want 200", status, resp.Error)
	}
	if resp.Cached {
		t.Error("first response is cached")
	}
	if !strings.Contains(resp.Lockfile, "ui@1.0.0(react@18.2.0)") {
		t.Errorf("lockfile missing peer suffix:\n%s", resp.Lockfile)
	}
	if _, err := uuid.Parse(resp.RunID); err != nil {
		t.Errorf("RunID = %q, want uuid", resp.RunID)
	}

	requests := reg.Requests()
	status, again := post(t, srv, appRequest())
	if status != http.StatusOK {
		t.Fatalf("second POST = %d, want 200", status)
	}
	if !again.Cached {
		t.Error("second response not cached")
	}
	if again.Lockfile != resp.Lockfile {
		t.Error("cached lockfile differs")
	}
	if reg.Requests() != requests {
		t.Errorf("registry requests = %d after cached call, want %d", reg.Requests(), requests)
	}
}

func TestResolveWorkspaceLink(t *testing.T) {
	srv, _ := newTestServer(t)
	status, resp := post(t, srv, ResolveRequest{Projects: map[string]*manifest.Manifest{
		".":            {Name: "app", Dependencies: map[string]string{"lib": "workspace:*"}},
		"packages/lib": {Name: "lib", Version: "1.0.0", Dependencies: map[string]string{"react": "18.2.0"}},
	}})
	if status != http.StatusOK {
		t.Fatalf("POST /v1/resolve = %d (%s), want 200", status, resp.Error)
	}
	if !strings.Contains(resp.Lockfile, "link:packages/lib") {
		t.Errorf("lockfile missing workspace link:\n%s", resp.Lockfile)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		req  ResolveRequest
		want int
	}{
		{"no projects", ResolveRequest{}, http.StatusBadRequest},
		{"absolute id", ResolveRequest{Projects: map[string]*manifest.Manifest{"/etc": {Name: "x"}}}, http.StatusBadRequest},
		{"escaping id", ResolveRequest{Projects: map[string]*manifest.Manifest{"../x": {Name: "x"}}}, http.StatusBadRequest},
		{"nil manifest", ResolveRequest{Projects: map[string]*manifest.Manifest{".": nil}}, http.StatusBadRequest},
		{"bad lockfile", ResolveRequest{Projects: appRequest().Projects, Lockfile: "importers: {}"}, http.StatusBadRequest},
		{"unknown package", ResolveRequest{Projects: map[string]*manifest.Manifest{
			".": {Name: "app", Dependencies: map[string]string{"nope": "^1.0.0"}},
		}}, http.StatusUnprocessableEntity},
	}

	srv, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.req)
			resp, err := http.Post(srv.URL+"/v1/resolve", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				data, _ := io.ReadAll(resp.Body)
				t.Errorf("POST /v1/resolve = %d, want %d (%s)", resp.StatusCode, tt.want, data)
			}
		})
	}
}

func TestResolveStrictPeers(t *testing.T) {
	srv, _ := newTestServer(t)
	status, resp := post(t, srv, ResolveRequest{
		Projects: map[string]*manifest.Manifest{
			".": {Name: "app", Dependencies: map[string]string{"ui": "^1.0.0"}},
		},
		StrictPeerDependencies: true,
	})
	if status != http.StatusConflict {
		t.Fatalf("POST /v1/resolve = %d, want 409", status)
	}
	if len(resp.Issues["."]) == 0 {
		t.Errorf("Issues = %v, want missing react for project .", resp.Issues)
	}
	if resp.Error == "" {
		t.Error("Error is empty")
	}
}

func TestGraph(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp := post(t, srv, appRequest())

	status, dot := get(t, srv.URL+"/v1/runs/"+resp.RunID+"/graph.dot")
	if status != http.StatusOK {
		t.Fatalf("GET graph.dot = %d, want 200", status)
	}
	if !strings.Contains(dot, `"project:." -> "ui@1.0.0(react@18.2.0)"`) {
		t.Errorf("graph.dot missing project edge:\n%s", dot)
	}

	status, svg := get(t, srv.URL+"/v1/runs/"+resp.RunID+"/graph.svg")
	if status != http.StatusOK {
		t.Fatalf("GET graph.svg = %d, want 200", status)
	}
	if !strings.Contains(svg, "<svg") {
		t.Errorf("graph.svg is not SVG: %.80s", svg)
	}
}

func TestGraphErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		id   string
		want int
	}{
		{"unknown run", uuid.NewString(), http.StatusNotFound},
		{"invalid id", "not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _ := get(t, srv.URL+"/v1/runs/"+tt.id+"/graph.dot"); status != tt.want {
				t.Errorf("GET graph.dot = %d, want %d", status, tt.want)
			}
		})
	}
}
