// Package callgraph records caller/callee edges observed during a scan and
// inverts them into per-issue caller hierarchies.
package callgraph

import (
	"github.com/cespare/xxhash/v2"

	"github.com/panbanda/auger/pkg/models"
)

// DefaultMaxDepth bounds hierarchy expansion. It is the only cycle breaker.
const DefaultMaxDepth = 10

// Edge is one observed call. Caller and Callee are method identities; the
// remaining fields decorate the caller frame.
type Edge struct {
	Caller       string           `json:"caller" msgpack:"caller"`
	Callee       string           `json:"callee" msgpack:"callee"`
	CallerType   string           `json:"caller_type,omitempty" msgpack:"caller_type,omitempty"`
	CallerMethod string           `json:"caller_method,omitempty" msgpack:"caller_method,omitempty"`
	Module       string           `json:"module,omitempty" msgpack:"module,omitempty"`
	Location     *models.Location `json:"location,omitempty" msgpack:"location,omitempty"`
}

func (e Edge) key() uint64 {
	return xxhash.Sum64String(e.Caller + "->" + e.Callee)
}

// node returns a fresh frame for the edge's caller.
func (e Edge) node() *models.CallNode {
	n := &models.CallNode{
		Name:   e.Caller,
		Type:   e.CallerType,
		Method: e.CallerMethod,
		Module: e.Module,
	}
	if e.Location != nil {
		loc := *e.Location
		n.Location = &loc
	}
	return n
}

// Graph is a flat, append-only set of edges. It is written during a scan
// and read afterwards; it is not safe for concurrent writes.
type Graph struct {
	edges []Edge
	index map[uint64][]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{index: make(map[uint64][]int)}
}

// Record adds a bare caller->callee edge.
func (g *Graph) Record(caller, callee string) bool {
	return g.Add(Edge{Caller: caller, Callee: callee})
}

// Add stores e unless an edge with the same caller and callee exists. It
// reports whether the edge was new.
func (g *Graph) Add(e Edge) bool {
	k := e.key()
	for _, i := range g.index[k] {
		if g.edges[i].Caller == e.Caller && g.edges[i].Callee == e.Callee {
			return false
		}
	}
	g.index[k] = append(g.index[k], len(g.edges))
	g.edges = append(g.edges, e)
	return true
}

// Merge adds every edge of other.
func (g *Graph) Merge(other *Graph) {
	for _, e := range other.edges {
		g.Add(e)
	}
}

// Len returns the number of distinct edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// callers buckets edges by callee.
func (g *Graph) callers() map[string][]Edge {
	byCallee := make(map[string][]Edge)
	for _, e := range g.edges {
		byCallee[e.Callee] = append(byCallee[e.Callee], e)
	}
	return byCallee
}

// BuildHierarchies expands each issue's call-site node with every recorded
// path of callers, up to maxDepth levels. Nodes whose callers were cut off
// by the limit are marked Truncated. maxDepth <= 0 uses DefaultMaxDepth.
func (g *Graph) BuildHierarchies(issues []*models.Issue, maxDepth int) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	byCallee := g.callers()
	for _, issue := range issues {
		if issue.Dependencies == nil {
			continue
		}
		expand(byCallee, issue.Dependencies, 0, maxDepth)
	}
}

// Hierarchy returns the caller tree of a single method.
func (g *Graph) Hierarchy(method string, maxDepth int) *models.CallNode {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	root := &models.CallNode{Name: method}
	expand(g.callers(), root, 0, maxDepth)
	return root
}

func expand(byCallee map[string][]Edge, n *models.CallNode, depth, maxDepth int) {
	edges := byCallee[n.Name]
	if depth >= maxDepth {
		for _, e := range edges {
			if e.Caller != n.Name {
				n.Truncated = true
				break
			}
		}
		return
	}
	for _, e := range edges {
		if e.Caller == n.Name {
			continue
		}
		child := e.node()
		n.AddChild(child)
		expand(byCallee, child, depth+1, maxDepth)
	}
}
