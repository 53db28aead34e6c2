package hnsw

import (
	chnsw "github.com/coder/hnsw"
)

// graph isolates the exact coder/hnsw v0.6.1 API surface this package
// depends on, so an upgrade only touches this file.
type graph struct {
	g *chnsw.Graph[uint32]
}

// newGraph constructs an empty in-memory HNSW graph with the collection's
// configured M. coder/hnsw has no separate construction-time ef, so the
// configured ef_construction value is applied as the graph's EfSearch.
func newGraph(m, efConstruction int) *graph {
	g := chnsw.NewGraph[uint32]()

	if m > 0 {
		g.M = m
	}

	if efConstruction > 0 {
		g.EfSearch = efConstruction
	}

	return &graph{g: g}
}

func (g *graph) add(label uint32, vector []float32) {
	g.g.Add(chnsw.MakeNode(label, vector))
}

func (g *graph) delete(label uint32) bool {
	return g.g.Delete(label)
}

func (g *graph) search(vector []float32, k int) []uint32 {
	nodes := g.g.Search(vector, k)

	out := make([]uint32, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Key)
	}

	return out
}

func (g *graph) len() int {
	return g.g.Len()
}
