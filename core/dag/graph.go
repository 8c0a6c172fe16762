package dag

import (
	"os"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/util"
)

var (
	fontsizeAttribute       = graph.VertexAttribute("fontsize", "10")
	pendingVertexAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "blues3"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "2"),
		graph.VertexAttribute("fillcolor", "1"),
	}
	finalVertexAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "bugn9"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "9"),
		graph.VertexAttribute("fillcolor", "3"),
	}
	rejectedVertexAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "reds3"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "2"),
		graph.VertexAttribute("fillcolor", "1"),
	}
)

func makeGraphNode(vid *vertex.WrappedVertex, gr graph.Graph[string, string]) {
	attr := pendingVertexAttributes
	switch vid.GetStatus() {
	case vertex.StatusFinal:
		attr = finalVertexAttributes
	case vertex.StatusRejected:
		attr = rejectedVertexAttributes
	}
	err := gr.AddVertex(vid.ID.StringShort(), attr...)
	util.AssertNoError(err)
}

// MakeGraph exports the whole DAG as a graphviz structure, vertices colored
// by consensus status
func (d *DAG) MakeGraph() graph.Graph[string, string] {
	ret := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic())

	all := d.Vertices()
	for _, vid := range all {
		makeGraphNode(vid, ret)
	}
	for _, vid := range all {
		for _, parentID := range vid.Parents() {
			if _, found := d.GetVertex(parentID); !found {
				continue
			}
			_ = ret.AddEdge(vid.ID.StringShort(), parentID.StringShort())
		}
	}
	return ret
}

// SaveGraph saves the DAG as a DOT file, mostly for debugging
func (d *DAG) SaveGraph(fname string) {
	gr := d.MakeGraph()
	dotFile, _ := os.Create(fname + ".gv")
	err := draw.DOT(gr, dotFile)
	util.AssertNoError(err)
	_ = dotFile.Close()
}
