// Package host is the Go-side caller of the kernel. It turns typed records
// into flat-buffer calls, maps string node ids to record indices, and runs
// the in-process implementations when the kernel is unavailable.
//
// Caller bugs (core.ErrInvalidInput, core.ErrNotInitialized) are returned in
// strict mode. Otherwise they are logged and the call yields an empty result.
// core.ErrUnavailable never reaches the caller.
package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"gridkernel/buffer"
	"gridkernel/cluster"
	"gridkernel/core"
	"gridkernel/geometry"
	"gridkernel/kernel"
	"gridkernel/simulation"
	"gridkernel/topology"
)

// Options tunes the client
type Options struct {
	Strict      bool         // surface caller bugs instead of degrading to empty results
	ClusterMode cluster.Mode // force or free the clustering backend
}

// gridState is a validated grid with its id <-> index mapping
type gridState struct {
	nodes []core.Node
	edges []core.Edge
	index map[string]int
}

// Client serialises all calls into one kernel
type Client struct {
	mu      sync.Mutex
	backend *kernel.Lazy
	opts    Options
	log     *zap.Logger

	clusters *cluster.Dispatcher

	grid     *gridState
	gridOn   bool // grid is loaded in the kernel
	sim      *simulation.Engine
	simReady bool

	graph      *gridState
	graphOn    bool
	localGraph *topology.Graph
	graphReady bool
}

// NewClient builds a client over a lazily initialised kernel
func NewClient(backend *kernel.Lazy, opts Options, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	kopts := backend.Options()
	host, err := cluster.NewSupercluster(kopts.Cluster, log)
	if err != nil {
		return nil, err
	}
	sim, err := simulation.NewEngine(kopts.Simulation, simulation.NewRand(kopts.Seed), log)
	if err != nil {
		return nil, err
	}
	c := &Client{
		backend:    backend,
		opts:       opts,
		log:        log,
		sim:        sim,
		localGraph: topology.NewGraph(kopts.WeightMode),
	}
	c.clusters = cluster.NewDispatcher(&KernelProvider{client: c}, host, opts.ClusterMode, kopts.Cluster, log)
	return c, nil
}

// Strict reports whether caller bugs are surfaced
func (c *Client) Strict() bool { return c.opts.Strict }

// Backend names the implementation answering clustering calls
func (c *Client) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clusters.Active().Name()
}

// degrade applies the error policy. It returns nil when the caller should
// carry on with an empty result.
func (c *Client) degrade(op string, err error) error {
	if err == nil {
		return nil
	}
	if c.opts.Strict || !core.IsCallerBug(err) {
		return err
	}
	c.log.Warn("grid kernel call degraded to empty result", zap.String("op", op), zap.Error(err))
	return nil
}

// stage makes room for size doubles of input and lets write fill them
func stage(k *kernel.Kernel, size int, write func(in []float64) error) error {
	a, err := k.Arena()
	if err != nil {
		return err
	}
	if _, err := a.Grow(size); err != nil {
		return err
	}
	return write(a.Input())
}

func output(k *kernel.Kernel) ([]float64, error) {
	a, err := k.Arena()
	if err != nil {
		return nil, err
	}
	return a.Output(), nil
}

// LoadPoints replaces the clustered point set
func (c *Client) LoadPoints(points []core.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degrade("load points", c.clusters.LoadPoints(points))
}

// GetClusters returns the clusters inside bounds at zoom
func (c *Client) GetClusters(bounds core.Bounds, zoom int) ([]core.Cluster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clusters, err := c.clusters.GetClusters(bounds, zoom)
	if err != nil {
		return []core.Cluster{}, c.degrade("get clusters", err)
	}
	return clusters, nil
}

// ExpansionZoom returns the zoom at which a cluster splits
func (c *Client) ExpansionZoom(clusterID int64, zoom int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, err := c.clusters.ExpansionZoom(clusterID, zoom)
	if err != nil {
		return zoom, c.degrade("expansion zoom", err)
	}
	return z, nil
}

// Children returns the markers a cluster splits into one zoom further in
func (c *Client) Children(clusterID int64) ([]core.Cluster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	children, err := c.clusters.GetChildren(clusterID)
	if err != nil {
		return []core.Cluster{}, c.degrade("children", err)
	}
	return children, nil
}

// Leaves pages through the points of a cluster
func (c *Client) Leaves(clusterID int64, limit, offset int) ([]core.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	leaves, err := c.clusters.GetLeaves(clusterID, limit, offset)
	if err != nil {
		return []core.Point{}, c.degrade("leaves", err)
	}
	return leaves, nil
}

// indexGrid validates nodes and endpoints and records node positions
func indexGrid(nodes []core.Node, edges []core.Edge) (*gridState, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("node %d: duplicate id %q: %w", i, n.ID, core.ErrInvalidInput)
		}
		if err := core.ValidateNode(n); err != nil {
			return nil, err
		}
		index[n.ID] = i
	}
	for i, e := range edges {
		_, okFrom := index[e.From]
		_, okTo := index[e.To]
		if !okFrom || !okTo {
			return nil, fmt.Errorf("edge %d (%s -> %s): unknown endpoint: %w", i, e.From, e.To, core.ErrInvalidInput)
		}
	}
	return &gridState{
		nodes: append([]core.Node(nil), nodes...),
		edges: append([]core.Edge(nil), edges...),
		index: index,
	}, nil
}

func (g *gridState) indexed(weight func(e core.Edge) float64) []buffer.IndexedEdge {
	out := make([]buffer.IndexedEdge, len(g.edges))
	for i, e := range g.edges {
		out[i] = buffer.IndexedEdge{
			From:     g.index[e.From],
			To:       g.index[e.To],
			Capacity: e.Capacity,
			Load:     e.Load,
		}
		if weight != nil {
			out[i].Weight = weight(e)
		}
	}
	return out
}

// LoadGrid replaces the simulated grid
func (c *Client) LoadGrid(nodes []core.Node, edges []core.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	grid, err := indexGrid(nodes, edges)
	if err != nil {
		return c.degrade("load grid", err)
	}
	onKernel, err := c.loadGridKernel(grid)
	if err != nil {
		return c.degrade("load grid", err)
	}
	c.grid = grid
	c.gridOn = onKernel
	c.simReady = false
	if !onKernel {
		return c.degrade("load grid", c.loadGridLocal())
	}
	return nil
}

func (c *Client) loadGridKernel(grid *gridState) (bool, error) {
	k, err := c.backend.Kernel()
	if err != nil {
		return false, nil
	}
	edges := grid.indexed(nil)
	size := buffer.NodeIn.Size(len(grid.nodes)) + buffer.EdgeIn.Size(len(edges))
	err = stage(k, size, func(in []float64) error {
		off, err := buffer.EncodeNodes(in, grid.nodes)
		if err != nil {
			return err
		}
		_, err = buffer.EncodeEdges(in[off:], edges)
		return err
	})
	if err == nil {
		_, err = k.LoadGrid(len(grid.nodes), len(edges))
	}
	if errors.Is(err, core.ErrUnavailable) {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) loadGridLocal() error {
	if c.grid == nil {
		return fmt.Errorf("tick: %w", core.ErrNotInitialized)
	}
	if !c.simReady {
		if err := c.sim.Load(c.grid.nodes, c.grid.edges); err != nil {
			return err
		}
		c.simReady = true
	}
	return nil
}

// Tick computes node and edge state at clock. Results follow load order.
func (c *Client) Tick(clock core.Clock) ([]core.NodeState, []core.EdgeState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodes, edges, err := c.tick(clock)
	if err != nil {
		return []core.NodeState{}, []core.EdgeState{}, c.degrade("tick", err)
	}
	return nodes, edges, nil
}

func (c *Client) tick(clock core.Clock) ([]core.NodeState, []core.EdgeState, error) {
	if c.grid == nil {
		return nil, nil, fmt.Errorf("tick: %w", core.ErrNotInitialized)
	}
	if c.gridOn {
		nodes, edges, err := c.tickKernel(clock)
		if !errors.Is(err, core.ErrUnavailable) {
			return nodes, edges, err
		}
		c.log.Info("kernel gone, ticking on host", zap.Error(err))
		c.gridOn = false
	}
	if err := c.loadGridLocal(); err != nil {
		return nil, nil, err
	}
	return c.sim.Tick(clock)
}

func (c *Client) tickKernel(clock core.Clock) ([]core.NodeState, []core.EdgeState, error) {
	k, err := c.backend.Kernel()
	if err != nil {
		return nil, nil, err
	}
	if _, err := k.Tick(clock.Hour, clock.Minute); err != nil {
		return nil, nil, err
	}
	out, err := output(k)
	if err != nil {
		return nil, nil, err
	}
	values, statuses, powers, err := buffer.DecodeTick(out, len(c.grid.nodes), len(c.grid.edges))
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]core.NodeState, len(values))
	for i, v := range values {
		nodes[i] = core.NodeState{ID: c.grid.nodes[i].ID, Value: v, Status: statuses[i]}
	}
	edges := make([]core.EdgeState, len(powers))
	for i, p := range powers {
		e := c.grid.edges[i]
		edges[i] = core.EdgeState{From: e.From, To: e.To, Power: p}
	}
	return nodes, edges, nil
}

// SetGraph replaces the path-finding graph. Edge weights are resolved here
// so the kernel and the host fallback agree on costs.
func (c *Client) SetGraph(nodes []core.Node, edges []core.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	graph, err := indexGrid(nodes, edges)
	if err != nil {
		return c.degrade("set graph", err)
	}
	onKernel, err := c.setGraphKernel(graph)
	if err != nil {
		return c.degrade("set graph", err)
	}
	c.graph = graph
	c.graphOn = onKernel
	c.graphReady = false
	if !onKernel {
		return c.degrade("set graph", c.loadGraphLocal())
	}
	return nil
}

func (c *Client) setGraphKernel(graph *gridState) (bool, error) {
	k, err := c.backend.Kernel()
	if err != nil {
		return false, nil
	}
	mode := k.Options().WeightMode
	edges := graph.indexed(func(e core.Edge) float64 {
		return topology.EdgeWeight(mode, e, graph.nodes[graph.index[e.From]], graph.nodes[graph.index[e.To]])
	})
	size := buffer.NodeIn.Size(len(graph.nodes)) + buffer.GraphEdgeIn.Size(len(edges))
	err = stage(k, size, func(in []float64) error {
		off, err := buffer.EncodeNodes(in, graph.nodes)
		if err != nil {
			return err
		}
		_, err = buffer.EncodeGraphEdges(in[off:], edges)
		return err
	})
	if err == nil {
		_, err = k.SetGraph(len(graph.nodes), len(edges))
	}
	if errors.Is(err, core.ErrUnavailable) {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) loadGraphLocal() error {
	if c.graph == nil {
		return fmt.Errorf("find path: %w", core.ErrNotInitialized)
	}
	if !c.graphReady {
		if err := c.localGraph.SetGraph(c.graph.nodes, c.graph.edges); err != nil {
			return err
		}
		c.graphReady = true
	}
	return nil
}

// FindPath returns the cheapest path between two node ids, nil when either
// id is unknown or no path exists.
func (c *Client) FindPath(from, to string) (*core.PathResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.findPath(from, to)
	if err != nil {
		return nil, c.degrade("find path", err)
	}
	return res, nil
}

func (c *Client) findPath(from, to string) (*core.PathResult, error) {
	if c.graph == nil {
		return nil, fmt.Errorf("find path: %w", core.ErrNotInitialized)
	}
	src, okFrom := c.graph.index[from]
	dst, okTo := c.graph.index[to]
	if !okFrom || !okTo {
		return nil, nil
	}
	if c.graphOn {
		res, err := c.findPathKernel(src, dst)
		if !errors.Is(err, core.ErrUnavailable) {
			return res, err
		}
		c.log.Info("kernel gone, routing on host", zap.Error(err))
		c.graphOn = false
	}
	if err := c.loadGraphLocal(); err != nil {
		return nil, err
	}
	return c.localGraph.FindPath(from, to)
}

// Reachable lists the node ids reachable from id along edge direction, id
// first. The kernel only answers point-to-point queries, so this always
// runs on the host graph.
func (c *Client) Reachable(id string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadGraphLocal(); err != nil {
		return []string{}, c.degrade("reachable", err)
	}
	reach := c.localGraph.Reachable(id)
	if reach == nil {
		return []string{}, nil
	}
	return reach, nil
}

func (c *Client) findPathKernel(src, dst int) (*core.PathResult, error) {
	k, err := c.backend.Kernel()
	if err != nil {
		return nil, err
	}
	if _, err := k.FindPath(src, dst); err != nil {
		return nil, err
	}
	out, err := output(k)
	if err != nil {
		return nil, err
	}
	idx, cost, ok, err := buffer.DecodePath(out)
	if err != nil || !ok {
		return nil, err
	}
	ids := make([]string, len(idx))
	for i, n := range idx {
		if n < 0 || n >= len(c.graph.nodes) {
			return nil, fmt.Errorf("path index %d out of range: %w", n, core.ErrInvalidInput)
		}
		ids[i] = c.graph.nodes[n].ID
	}
	return &core.PathResult{Nodes: ids, Cost: cost}, nil
}

// GenerateCurve samples a curved polyline between two points
func (c *Client) GenerateCurve(from, to orb.Point, intensity float64, segments int) ([]orb.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	points, err := c.curveKernel(from, to, intensity, segments)
	if errors.Is(err, core.ErrUnavailable) {
		points, err = geometry.GenerateCurve(from, to, intensity, segments)
	}
	if err != nil {
		return []orb.Point{}, c.degrade("generate curve", err)
	}
	return points, nil
}

func (c *Client) curveKernel(from, to orb.Point, intensity float64, segments int) ([]orb.Point, error) {
	k, err := c.backend.Kernel()
	if err != nil {
		return nil, err
	}
	n, err := k.GenerateCurve(from[0], from[1], to[0], to[1], intensity, segments)
	if err != nil {
		return nil, err
	}
	out, err := output(k)
	if err != nil {
		return nil, err
	}
	return buffer.DecodeCurve(out, n)
}

// Dispose tears down the kernel. Later calls run on the host.
func (c *Client) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend.Dispose()
}
