package render

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stackresolve/pkg/dag"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/resolve"
)

// Edge is an edge drawn dashed, usually one removed by cycle breaking.
type Edge struct {
	From, To, Label string
}

// Options configures diagram generation.
type Options struct {
	// Detailed adds depth and metadata lines to node labels.
	Detailed bool

	// Broken edges are drawn dashed in addition to the graph's edges.
	Broken []Edge
}

const (
	fillPeer    = "#dbeafe"
	fillProject = "#fef3c7"
)

// ToDOT converts a graph to Graphviz DOT source.
func ToDOT(g *dag.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10, color=\"#555555\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	nodes := g.Nodes()
	slices.SortFunc(nodes, func(a, b *dag.Node) int { return strings.Compare(a.ID, b.ID) })
	for _, n := range nodes {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(nodeAttrs(n, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		attrs := edgeAttrs(g, e.To, e.Label)
		if len(attrs) == 0 {
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.From, e.To, strings.Join(attrs, ", "))
	}
	for _, e := range opts.Broken {
		attrs := append(edgeAttrs(g, e.To, e.Label), "style=dashed", "color=\"#b91c1c\"")
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.From, e.To, strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ResultDOT renders the final graph of a resolution, with the edges removed
// by cycle breaking drawn dashed.
func ResultDOT(res *resolve.Result, opts Options) string {
	for _, e := range res.BrokenEdges {
		opts.Broken = append(opts.Broken, Edge{From: string(e.From), To: string(e.To), Label: e.Alias})
	}
	return ToDOT(res.DAG(), opts)
}

func nodeAttrs(n *dag.Node, detailed bool) []string {
	label := nodeLabel(n)
	if detailed {
		parts := []string{fmt.Sprintf("depth: %d", n.Depth)}
		for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
			parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
		}
		label += "\n" + strings.Join(parts, "\n")
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case n.Meta["project"] == true:
		attrs = append(attrs, "shape=folder", fmt.Sprintf("fillcolor=%q", fillProject))
	case strings.Contains(n.ID, "("):
		attrs = append(attrs, fmt.Sprintf("fillcolor=%q", fillPeer))
	}
	return attrs
}

// nodeLabel puts the peer suffix of a dependency path on its own line.
func nodeLabel(n *dag.Node) string {
	id := strings.TrimPrefix(n.ID, "project:")
	if i := strings.IndexByte(id, '('); i > 0 {
		return id[:i] + "\n" + id[i:]
	}
	return id
}

func edgeAttrs(g *dag.Graph, to, label string) []string {
	if label == "" {
		return nil
	}
	if n, ok := g.Node(to); ok && n.Meta["name"] == label {
		return nil
	}
	return []string{fmt.Sprintf("label=%q", label)}
}

// RenderSVG lays out DOT source with Graphviz and returns SVG.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with one whose
// width and height match the viewBox, so browsers scale it.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
