package render

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/stackresolve/pkg/dag"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/resolve"
	"github.com/matzehuels/stackresolve/pkg/source/memory"
)

func testGraph() *dag.Graph {
	g := dag.New(nil)
	g.AddNode(dag.Node{ID: "project:.", Meta: dag.Metadata{"project": true}})
	g.AddNode(dag.Node{ID: "react@18.2.0", Depth: 1, Meta: dag.Metadata{"name": "react", "version": "18.2.0"}})
	g.AddNode(dag.Node{ID: "ui@1.0.0(react@18.2.0)", Depth: 1, Meta: dag.Metadata{"name": "ui", "version": "1.0.0"}})
	g.AddEdge(dag.Edge{From: "project:.", To: "react@18.2.0", Label: "react"})
	g.AddEdge(dag.Edge{From: "project:.", To: "ui@1.0.0(react@18.2.0)", Label: "my-ui"})
	g.AddEdge(dag.Edge{From: "ui@1.0.0(react@18.2.0)", To: "react@18.2.0", Label: "react"})
	return g
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(testGraph(), Options{})

	tests := []struct {
		name string
		want string
	}{
		{"header", "digraph G {"},
		{"project shape", `"project:." [label=".", shape=folder`},
		{"peer suffix on own line", `label="ui@1.0.0\n(react@18.2.0)", fillcolor="#dbeafe"`},
		{"plain edge", `"project:." -> "react@18.2.0";`},
		{"aliased edge", `"project:." -> "ui@1.0.0(react@18.2.0)" [label="my-ui"];`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(dot, tt.want) {
				t.Errorf("ToDOT() missing %s\n%s", tt.want, dot)
			}
		})
	}
}

func TestToDOTDetailed(t *testing.T) {
	dot := ToDOT(testGraph(), Options{Detailed: true})
	for _, want := range []string{"depth: 1", "version: 18.2.0"} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT(detailed) missing %q", want)
		}
	}
}

func TestToDOTBroken(t *testing.T) {
	dot := ToDOT(testGraph(), Options{Broken: []Edge{{From: "react@18.2.0", To: "ui@1.0.0(react@18.2.0)", Label: "ui"}}})
	if !strings.Contains(dot, `"react@18.2.0" -> "ui@1.0.0(react@18.2.0)" [style=dashed`) {
		t.Errorf("ToDOT() missing dashed broken edge\n%s", dot)
	}
}

func TestToDOTDeterministic(t *testing.T) {
	if ToDOT(testGraph(), Options{}) != ToDOT(testGraph(), Options{}) {
		t.Error("ToDOT() output differs between runs")
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(testGraph(), Options{}))
	if err != nil {
		t.Fatalf("RenderSVG() error: %v", err)
	}
	s := string(svg)
	if !strings.Contains(s, "<svg") || !strings.Contains(s, "react@18.2.0") {
		t.Error("RenderSVG() output is not an SVG of the graph")
	}
	if !strings.Contains(s, `viewBox="0 0 `) {
		t.Error("RenderSVG() viewBox not normalized")
	}
}

func TestRenderSVGInvalid(t *testing.T) {
	if _, err := RenderSVG(context.Background(), "digraph {"); err == nil {
		t.Error("RenderSVG(invalid) error = nil")
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.00 50.00" width="100" height="50"><g/></svg>`
	if got != want {
		t.Errorf("normalizeViewBox() = %s, want %s", got, want)
	}
}

func TestResultDOT(t *testing.T) {
	reg := memory.New().
		Add(&manifest.Manifest{Name: "a", Version: "1.0.0", Dependencies: map[string]string{"b": "1"}}).
		Add(&manifest.Manifest{Name: "b", Version: "1.0.0", Dependencies: map[string]string{"a": "1"}})
	res, err := resolve.ResolveDependencyTree(context.Background(), []*resolve.Project{{
		ID:       ".",
		Manifest: &manifest.Manifest{Name: "app", Dependencies: map[string]string{"a": "1"}},
	}}, resolve.Options{Source: reg, LockfileDir: "/ws", SkipFetch: true})
	if err != nil {
		t.Fatalf("ResolveDependencyTree() error = %v", err)
	}

	dot := ResultDOT(res, Options{})
	if !strings.Contains(dot, `"project:." -> "a@1.0.0";`) {
		t.Errorf("ResultDOT() missing project edge\n%s", dot)
	}
	if !strings.Contains(dot, `"b@1.0.0" -> "a@1.0.0" [style=dashed`) {
		t.Errorf("ResultDOT() missing dashed cycle edge\n%s", dot)
	}
}
