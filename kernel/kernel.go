// Package kernel is the numeric core behind the flat-buffer protocol.
//
// A Kernel owns the shared arena and the loaded state of every engine. Hosts
// write records into the input region, call an entry point with counts and
// scalars, and read records back from the output region:
//
//	LoadPoints(n)                         PointIn x n            -> -
//	GetClusters(w, s, e, n, zoom)         -                      -> ClusterOut x count
//	LoadGrid(nodes, edges)                NodeIn x nodes, EdgeIn -> -
//	Tick(hour, minute)                    -                      -> NodeOut x nodes, EdgeOut x edges
//	SetGraph(nodes, edges)                NodeIn, GraphEdgeIn    -> -
//	FindPath(from, to)                    -                      -> PathOut
//	GenerateCurve(x1, y1, x2, y2, i, seg) -                      -> CurveOut x seg+1
//
// Every entry point returns a record count and overwrites the output region.
// Output may grow the arena; hosts re-read pointers when Generation moves.
// A Kernel is single threaded: overlapping calls fail with core.ErrBusy.
package kernel

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"gridkernel/buffer"
	"gridkernel/cluster"
	"gridkernel/core"
	"gridkernel/geometry"
	"gridkernel/simulation"
	"gridkernel/topology"
)

// Options configures a kernel instance
type Options struct {
	Capacity   int // doubles per arena region
	Cluster    cluster.Options
	Simulation simulation.Options
	WeightMode topology.WeightMode
	Seed       uint64 // 0 seeds from the clock
}

// DefaultOptions returns the stock kernel configuration
func DefaultOptions() Options {
	return Options{
		Capacity:   buffer.DefaultCapacity,
		Cluster:    cluster.DefaultOptions(),
		Simulation: simulation.DefaultOptions(),
		WeightMode: topology.WeightCapacity,
	}
}

// Kernel is an explicit handle on one kernel instance
type Kernel struct {
	opts Options
	log  *zap.Logger

	arena    *buffer.Arena
	clusters *cluster.Greedy
	sim      *simulation.Engine
	graph    *topology.Graph
	calls    uint64
}

// New creates and initialises a kernel
func New(opts Options, log *zap.Logger) (*Kernel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	k := &Kernel{opts: opts, log: log}
	if err := k.Init(); err != nil {
		return nil, err
	}
	return k, nil
}

// Init allocates the arena and fresh engines. Calling it on a live kernel
// drops all loaded state, like Reset, and also reallocates the arena.
func (k *Kernel) Init() error {
	arena, err := buffer.NewArena(k.opts.Capacity)
	if err != nil {
		return err
	}
	k.arena = arena
	if err := k.resetEngines(); err != nil {
		k.arena = nil
		return err
	}
	k.log.Debug("kernel initialised", zap.Int("capacity", arena.Capacity()))
	return nil
}

func (k *Kernel) resetEngines() error {
	clusters, err := cluster.NewGreedy(k.opts.Cluster)
	if err != nil {
		return err
	}
	sim, err := simulation.NewEngine(k.opts.Simulation, simulation.NewRand(k.opts.Seed), k.log)
	if err != nil {
		return err
	}
	k.clusters = clusters
	k.sim = sim
	k.graph = topology.NewGraph(k.opts.WeightMode)
	return nil
}

// Reset invalidates every loaded point set, grid and graph. The arena and
// its pointers survive.
func (k *Kernel) Reset() error {
	if k.arena == nil {
		return fmt.Errorf("kernel reset: %w", core.ErrUnavailable)
	}
	if k.arena.Busy() {
		return fmt.Errorf("kernel reset: %w", core.ErrBusy)
	}
	return k.resetEngines()
}

// Dispose releases the kernel. Later calls report core.ErrUnavailable.
func (k *Kernel) Dispose() {
	k.arena = nil
	k.clusters = nil
	k.sim = nil
	k.graph = nil
	k.log.Debug("kernel disposed", zap.Uint64("calls", k.calls))
}

// Available reports whether the kernel can take calls
func (k *Kernel) Available() bool { return k != nil && k.arena != nil }

// Options returns the configuration the kernel was built with
func (k *Kernel) Options() Options { return k.opts }

// InputPtr is the input region offset, -1 once disposed
func (k *Kernel) InputPtr() int {
	if !k.Available() {
		return -1
	}
	return k.arena.InputPtr()
}

// OutputPtr is the output region offset, -1 once disposed
func (k *Kernel) OutputPtr() int {
	if !k.Available() {
		return -1
	}
	return k.arena.OutputPtr()
}

// Capacity is the size of each region in doubles, 0 once disposed
func (k *Kernel) Capacity() int {
	if !k.Available() {
		return 0
	}
	return k.arena.Capacity()
}

// Generation moves whenever the arena is reallocated
func (k *Kernel) Generation() uint64 {
	if !k.Available() {
		return 0
	}
	return k.arena.Generation()
}

// Memory is the whole linear memory, nil once disposed
func (k *Kernel) Memory() []float64 {
	if !k.Available() {
		return nil
	}
	return k.arena.Memory()
}

// Arena exposes the scratch arena for hosts that marshal records directly
func (k *Kernel) Arena() (*buffer.Arena, error) {
	if !k.Available() {
		return nil, core.ErrUnavailable
	}
	return k.arena, nil
}

// call runs fn with the arena checked out
func (k *Kernel) call(op string, fn func(l *buffer.Lease) (int, error)) (int, error) {
	if !k.Available() {
		return 0, fmt.Errorf("%s: %w", op, core.ErrUnavailable)
	}
	lease, err := k.arena.Checkout()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer lease.Return()

	k.calls++
	n, err := fn(lease)
	if err != nil {
		k.log.Debug("kernel call failed", zap.String("op", op), zap.Error(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	k.log.Debug("kernel call", zap.String("op", op), zap.Int("records", n))
	return n, nil
}

// LoadPoints reads n PointIn records and replaces the clustered point set
func (k *Kernel) LoadPoints(n int) (int, error) {
	return k.call("load points", func(l *buffer.Lease) (int, error) {
		points, err := buffer.DecodePoints(l.In, n)
		if err != nil {
			return 0, err
		}
		if err := k.clusters.LoadPoints(points); err != nil {
			return 0, err
		}
		return n, nil
	})
}

// GetClusters writes the clusters inside the bounds at zoom as ClusterOut
// records and returns how many were written.
func (k *Kernel) GetClusters(west, south, east, north float64, zoom int) (int, error) {
	return k.call("get clusters", func(l *buffer.Lease) (int, error) {
		bounds := core.Bounds{West: west, South: south, East: east, North: north}
		clusters, err := k.clusters.GetClusters(bounds, zoom)
		if err != nil {
			return 0, err
		}
		if _, err := l.Reserve(buffer.ClusterOut.Size(len(clusters))); err != nil {
			return 0, err
		}
		if _, err := buffer.EncodeClusters(l.Out, clusters); err != nil {
			return 0, err
		}
		return len(clusters), nil
	})
}

// decodeGrid reads NodeIn records followed by an edge block. Node ids are
// record indices.
func decodeGrid(in []float64, nodeCount int) ([]core.Node, []float64, error) {
	nodes, err := buffer.DecodeNodes(in, nodeCount)
	if err != nil {
		return nil, nil, err
	}
	return nodes, in[buffer.NodeIn.Size(nodeCount):], nil
}

func indexEdges(edges []buffer.IndexedEdge) []core.Edge {
	out := make([]core.Edge, len(edges))
	for i, e := range edges {
		out[i] = core.Edge{
			From:     strconv.Itoa(e.From),
			To:       strconv.Itoa(e.To),
			Capacity: e.Capacity,
			Load:     e.Load,
			Weight:   e.Weight,
		}
	}
	return out
}

// LoadGrid reads nodes NodeIn records then edges EdgeIn records and
// replaces the simulated grid.
func (k *Kernel) LoadGrid(nodes, edges int) (int, error) {
	return k.call("load grid", func(l *buffer.Lease) (int, error) {
		ns, rest, err := decodeGrid(l.In, nodes)
		if err != nil {
			return 0, err
		}
		es, err := buffer.DecodeEdges(rest, edges, nodes)
		if err != nil {
			return 0, err
		}
		if err := k.sim.Load(ns, indexEdges(es)); err != nil {
			return 0, err
		}
		return nodes, nil
	})
}

// Tick writes NodeOut records for every node then EdgeOut records for every
// edge at the given time of day. It returns nodes + edges.
func (k *Kernel) Tick(hour, minute float64) (int, error) {
	return k.call("tick", func(l *buffer.Lease) (int, error) {
		nodes, edges, err := k.sim.Tick(core.Clock{Hour: hour, Minute: minute})
		if err != nil {
			return 0, err
		}
		if _, err := l.Reserve(buffer.NodeOut.Size(len(nodes)) + buffer.EdgeOut.Size(len(edges))); err != nil {
			return 0, err
		}
		if _, err := buffer.EncodeTick(l.Out, nodes, edges); err != nil {
			return 0, err
		}
		return len(nodes) + len(edges), nil
	})
}

// SetGraph reads nodes NodeIn records then edges GraphEdgeIn records and
// replaces the path-finding graph.
func (k *Kernel) SetGraph(nodes, edges int) (int, error) {
	return k.call("set graph", func(l *buffer.Lease) (int, error) {
		ns, rest, err := decodeGrid(l.In, nodes)
		if err != nil {
			return 0, err
		}
		es, err := buffer.DecodeGraphEdges(rest, edges, nodes)
		if err != nil {
			return 0, err
		}
		if err := k.graph.SetGraph(ns, indexEdges(es)); err != nil {
			return 0, err
		}
		return nodes, nil
	})
}

// FindPath writes the cheapest path between two node indices as a PathOut
// record and returns its node count, 0 when no path exists.
func (k *Kernel) FindPath(from, to int) (int, error) {
	return k.call("find path", func(l *buffer.Lease) (int, error) {
		idx, cost, ok, err := k.graph.PathIndices(from, to)
		if err != nil {
			return 0, err
		}
		if !ok {
			idx, cost = nil, 0
		}
		if _, err := l.Reserve(buffer.PathHeader + len(idx)); err != nil {
			return 0, err
		}
		if _, err := buffer.EncodePath(l.Out, idx, cost); err != nil {
			return 0, err
		}
		return len(idx), nil
	})
}

// GenerateCurve writes segments+1 CurveOut records
func (k *Kernel) GenerateCurve(x1, y1, x2, y2, intensity float64, segments int) (int, error) {
	return k.call("generate curve", func(l *buffer.Lease) (int, error) {
		points, err := geometry.GenerateCurve(orb.Point{x1, y1}, orb.Point{x2, y2}, intensity, segments)
		if err != nil {
			return 0, err
		}
		if _, err := l.Reserve(buffer.CurveOut.Size(len(points))); err != nil {
			return 0, err
		}
		if _, err := buffer.EncodeCurve(l.Out, points); err != nil {
			return 0, err
		}
		return len(points), nil
	})
}
