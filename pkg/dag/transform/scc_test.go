package transform

import (
	"reflect"
	"testing"

	"github.com/matzehuels/stackresolve/pkg/dag"
)

func newGraph(edges ...[2]string) *dag.Graph {
	g := dag.New(nil)
	for _, e := range edges {
		g.EnsureNode(e[0])
		g.EnsureNode(e[1])
		g.AddEdge(dag.Edge{From: e[0], To: e[1]})
	}
	return g
}

func TestStronglyConnected(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]string
		want  [][]string
	}{
		{
			name:  "acyclic",
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  nil,
		},
		{
			name:  "mutual peers",
			edges: [][2]string{{"a", "b"}, {"b", "a"}},
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "self loop",
			edges: [][2]string{{"a", "a"}, {"a", "b"}},
			want:  [][]string{{"a"}},
		},
		{
			name:  "two components",
			edges: [][2]string{{"x", "y"}, {"y", "x"}, {"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "x"}},
			want:  [][]string{{"a", "b", "c"}, {"x", "y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StronglyConnected(newGraph(tt.edges...))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StronglyConnected() = %v, want %v", got, tt.want)
			}
		})
	}
}
