package resolve

import "testing"

func dedupeGraph() (Graph, map[string]map[string]DepPath) {
	node := func(dp DepPath, children map[string]DepPath, peers ...string) *Node {
		return &Node{DepPath: dp, PkgID: "x@1.0.0", PkgIDWithPatchHash: "x@1.0.0", Name: "x", Version: "1.0.0", Children: children, ResolvedPeerNames: peers}
	}
	g := Graph{
		"a@1.0.0":                   {DepPath: "a@1.0.0", PkgIDWithPatchHash: "a@1.0.0", Children: map[string]DepPath{}},
		"b@1.0.0":                   {DepPath: "b@1.0.0", PkgIDWithPatchHash: "b@1.0.0", Children: map[string]DepPath{}},
		"x@1.0.0(a@1.0.0)":          node("x@1.0.0(a@1.0.0)", map[string]DepPath{"a": "a@1.0.0"}, "a"),
		"x@1.0.0(a@1.0.0)(b@1.0.0)": node("x@1.0.0(a@1.0.0)(b@1.0.0)", map[string]DepPath{"a": "a@1.0.0", "b": "b@1.0.0"}, "a", "b"),
		"x@1.0.0(b@2.0.0)":          node("x@1.0.0(b@2.0.0)", map[string]DepPath{"b": "b@2.0.0"}, "b"),
	}
	deps := map[string]map[string]DepPath{
		"p": {"x": "x@1.0.0(a@1.0.0)"},
		"q": {"x": "x@1.0.0(a@1.0.0)(b@1.0.0)"},
		"r": {"x": "x@1.0.0(b@2.0.0)"},
	}
	return g, deps
}

func TestDedupePeerDependents(t *testing.T) {
	g, deps := dedupeGraph()

	if got := dedupePeerDependents(g, deps); got != 1 {
		t.Errorf("dedupePeerDependents() = %d, want 1", got)
	}
	if got := deps["p"]["x"]; got != "x@1.0.0(a@1.0.0)(b@1.0.0)" {
		t.Errorf("p x = %q, want the superset", got)
	}
	if got := deps["r"]["x"]; got != "x@1.0.0(b@2.0.0)" {
		t.Errorf("r x = %q, want it unchanged", got)
	}
	if _, ok := g["x@1.0.0(a@1.0.0)"]; ok {
		t.Error("subset node still in graph")
	}
}

func TestDedupePeerDependentsIdempotent(t *testing.T) {
	g, deps := dedupeGraph()
	dedupePeerDependents(g, deps)
	before := len(g)

	if got := dedupePeerDependents(g, deps); got != 0 {
		t.Errorf("second dedupePeerDependents() = %d, want 0", got)
	}
	if len(g) != before {
		t.Errorf("len(Graph) = %d, want %d", len(g), before)
	}
}

func TestIsCompatibleAndHasMoreDeps(t *testing.T) {
	super := &Node{Children: map[string]DepPath{"a": "a@1.0.0", "b": "b@1.0.0"}, ResolvedPeerNames: []string{"a", "b"}}
	tests := []struct {
		name string
		sub  *Node
		want bool
	}{
		{"subset", &Node{Children: map[string]DepPath{"a": "a@1.0.0"}, ResolvedPeerNames: []string{"a"}}, true},
		{"empty", &Node{}, true},
		{"different child", &Node{Children: map[string]DepPath{"a": "a@2.0.0"}}, false},
		{"extra peer", &Node{ResolvedPeerNames: []string{"c"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCompatibleAndHasMoreDeps(super, tt.sub); got != tt.want {
				t.Errorf("isCompatibleAndHasMoreDeps() = %v, want %v", got, tt.want)
			}
		})
	}
}
