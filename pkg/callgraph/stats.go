package callgraph

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Stats summarises the shape of a call graph.
type Stats struct {
	Methods int `json:"methods"`
	Edges   int `json:"edges"`
	// Roots are methods no recorded method calls.
	Roots int `json:"roots"`
	// Cycles lists strongly connected components with more than one
	// method, each sorted by name.
	Cycles [][]string `json:"cycles,omitempty"`
	// SelfCalls counts directly recursive methods.
	SelfCalls int `json:"self_calls"`
}

// Stats computes graph statistics.
func (g *Graph) Stats() Stats {
	ids := make(map[string]int64)
	names := make(map[int64]string)
	dg := simple.NewDirectedGraph()
	nodeID := func(name string) int64 {
		if id, ok := ids[name]; ok {
			return id
		}
		id := int64(len(ids))
		ids[name] = id
		names[id] = name
		dg.AddNode(simple.Node(id))
		return id
	}

	st := Stats{Edges: len(g.edges)}
	called := make(map[string]bool)
	for _, e := range g.edges {
		from, to := nodeID(e.Caller), nodeID(e.Callee)
		// simple graphs reject self loops
		if from == to {
			st.SelfCalls++
			continue
		}
		called[e.Callee] = true
		dg.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}
	st.Methods = len(ids)
	for name := range ids {
		if !called[name] {
			st.Roots++
		}
	}

	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		cycle := make([]string, 0, len(scc))
		for _, n := range scc {
			cycle = append(cycle, names[n.ID()])
		}
		sort.Strings(cycle)
		st.Cycles = append(st.Cycles, cycle)
	}
	sort.Slice(st.Cycles, func(i, j int) bool { return st.Cycles[i][0] < st.Cycles[j][0] })
	return st
}
