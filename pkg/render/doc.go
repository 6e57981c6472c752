// Package render draws resolved dependency graphs as node-link diagrams.
//
// # Overview
//
// [ToDOT] converts the graph returned by resolve.Result.DAG into Graphviz
// DOT source and [RenderSVG] lays it out in-process with go-graphviz:
//
//	dot := render.ToDOT(res.DAG(), render.Options{})
//	svg, err := render.RenderSVG(ctx, dot)
//
// # Styling
//
// Projects are drawn as folders, peer-dependent packages (those whose
// dependency path carries a peer suffix) are filled blue and pure packages
// white. An edge is labelled with its alias when the alias differs from the
// target package name. Edges removed while breaking cycles are drawn dashed
// when passed in Options.Broken.
//
// The generated DOT uses top-to-bottom layout (rankdir=TB), so projects sit
// at the top and leaves at the bottom.
package render
