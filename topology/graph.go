// Package topology holds the directed grid graph and answers shortest-path
// queries over it.
package topology

import (
	"container/heap"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/paulmach/orb/geo"

	"gridkernel/core"
)

// WeightMode chooses the cost of an edge that carries no explicit weight
type WeightMode int

const (
	// WeightCapacity costs an edge 1/capacity, so wide lines are cheap
	WeightCapacity WeightMode = iota
	// WeightDistance costs an edge its great-circle length in km
	WeightDistance
)

// ParseWeightMode maps the config spelling to a WeightMode
func ParseWeightMode(s string) (WeightMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "capacity":
		return WeightCapacity, nil
	case "distance":
		return WeightDistance, nil
	}
	return WeightCapacity, fmt.Errorf("unknown weight mode %q: %w", s, core.ErrInvalidInput)
}

type arc struct {
	to     int
	weight float64
}

// Graph is a directed weighted graph with stable node order
type Graph struct {
	mu     sync.RWMutex
	mode   WeightMode
	ids    []string
	index  map[string]int
	adj    [][]arc
	edges  int
	loaded bool
}

// NewGraph creates an empty graph
func NewGraph(mode WeightMode) *Graph {
	return &Graph{mode: mode}
}

// EdgeWeight resolves the traversal cost of an edge between two positioned
// nodes. Explicit positive weights win.
func EdgeWeight(mode WeightMode, e core.Edge, from, to core.Node) float64 {
	if e.Weight > 0 {
		return e.Weight
	}
	if mode == WeightDistance {
		return geo.Distance(from.Position(), to.Position()) / 1000
	}
	if e.Capacity <= 0 {
		return 1
	}
	return 1 / e.Capacity
}

// SetGraph replaces the graph wholesale. Duplicate or malformed nodes and
// edges with unknown endpoints are rejected and leave the previous graph in place.
func (g *Graph) SetGraph(nodes []core.Node, edges []core.Edge) error {
	index := make(map[string]int, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return fmt.Errorf("node %d: duplicate id %q: %w", i, n.ID, core.ErrInvalidInput)
		}
		if err := core.ValidateNode(n); err != nil {
			return err
		}
		index[n.ID] = i
		ids[i] = n.ID
	}

	adj := make([][]arc, len(nodes))
	for i, e := range edges {
		from, okFrom := index[e.From]
		to, okTo := index[e.To]
		if !okFrom || !okTo {
			return fmt.Errorf("edge %d (%s -> %s): unknown endpoint: %w", i, e.From, e.To, core.ErrInvalidInput)
		}
		w := EdgeWeight(g.mode, e, nodes[from], nodes[to])
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("edge %d (%s -> %s): weight %v: %w", i, e.From, e.To, w, core.ErrInvalidInput)
		}
		adj[from] = append(adj[from], arc{to: to, weight: w})
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = ids
	g.index = index
	g.adj = adj
	g.edges = len(edges)
	g.loaded = true
	return nil
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// EdgeCount returns the number of edges, self-edges included
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges
}

// FindPath returns the cheapest path between two nodes. An unknown endpoint
// or an unreachable target yields nil with no error. Equal-cost ties go to
// the route discovered first.
func (g *Graph) FindPath(from, to string) (*core.PathResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.loaded {
		return nil, fmt.Errorf("find path: %w", core.ErrNotInitialized)
	}
	src, okFrom := g.index[from]
	dst, okTo := g.index[to]
	if !okFrom || !okTo {
		return nil, nil
	}
	idx, cost, ok := g.shortest(src, dst)
	if !ok {
		return nil, nil
	}
	path := make([]string, len(idx))
	for i, n := range idx {
		path[i] = g.ids[n]
	}
	return &core.PathResult{Nodes: path, Cost: cost}, nil
}

// PathIndices is FindPath over node positions, for the flat-buffer protocol.
// ok is false when either index is out of range or no path exists.
func (g *Graph) PathIndices(from, to int) (idx []int, cost float64, ok bool, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.loaded {
		return nil, 0, false, fmt.Errorf("find path: %w", core.ErrNotInitialized)
	}
	if from < 0 || to < 0 || from >= len(g.ids) || to >= len(g.ids) {
		return nil, 0, false, nil
	}
	idx, cost, ok = g.shortest(from, to)
	return idx, cost, ok, nil
}

func (g *Graph) shortest(src, dst int) ([]int, float64, bool) {
	if src == dst {
		return []int{src}, 0, true
	}
	dist, prev := g.dijkstra(src, dst)
	if math.IsInf(dist[dst], 1) {
		return nil, 0, false
	}
	var rev []int
	for n := dst; n != -1; n = prev[n] {
		rev = append(rev, n)
	}
	idx := make([]int, len(rev))
	for i, n := range rev {
		idx[len(rev)-1-i] = n
	}
	return idx, dist[dst], true
}

// Reachable lists the nodes reachable from id, id included, in visit order
func (g *Graph) Reachable(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.ids))
	seen[start] = true
	queue := []int{start}
	var out []string
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		out = append(out, g.ids[curr])
		for _, a := range g.adj[curr] {
			if !seen[a.to] {
				seen[a.to] = true
				queue = append(queue, a.to)
			}
		}
	}
	return out
}

// dijkstra settles nodes until dst is popped. prev holds -1 for roots and
// unreached nodes.
func (g *Graph) dijkstra(src, dst int) ([]float64, []int) {
	dist := make([]float64, len(g.ids))
	prev := make([]int, len(g.ids))
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0

	settled := make([]bool, len(g.ids))
	pq := &frontier{}
	seq := 0
	heap.Push(pq, item{node: src, dist: 0, seq: seq})
	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		if settled[it.node] {
			continue
		}
		settled[it.node] = true
		if it.node == dst {
			break
		}
		for _, a := range g.adj[it.node] {
			if settled[a.to] {
				continue
			}
			nd := it.dist + a.weight
			if nd < dist[a.to] {
				dist[a.to] = nd
				prev[a.to] = it.node
				seq++
				heap.Push(pq, item{node: a.to, dist: nd, seq: seq})
			}
		}
	}
	return dist, prev
}

type item struct {
	node int
	dist float64
	seq  int
}

// frontier is a min-heap on (dist, seq)
type frontier []item

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].dist != f[j].dist {
		return f[i].dist < f[j].dist
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(item)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	*f = old[:n-1]
	return it
}
