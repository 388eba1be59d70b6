// Package simulation derives live node values and edge power from the
// loaded base state and the simulated clock.
//
// Every tick is a pure function of the loaded state, the clock and the
// random draws it takes, so nothing accumulates between ticks.
package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"gridkernel/core"
)

// Rand is the randomness a tick consumes. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Options tunes the noise added on top of the daily profile
type Options struct {
	VariationAmplitude    float64 // sinusoidal swing within the hour
	NodeJitter            float64 // per-tick relative noise on non-live nodes
	EdgeFluctuation       float64 // per-tick relative noise on edge power
	MinEdgePower          float64 // floor keeping flow lines visible
	StatusFlipProbability float64 // chance per node per tick of Active<->Idle
}

// DefaultOptions returns the stock noise settings
func DefaultOptions() Options {
	return Options{
		VariationAmplitude:    0.05,
		NodeJitter:            0.02,
		EdgeFluctuation:       0.10,
		MinEdgePower:          0.1,
		StatusFlipProbability: 0.005,
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	for name, v := range map[string]float64{
		"variation amplitude": o.VariationAmplitude,
		"node jitter":         o.NodeJitter,
		"edge fluctuation":    o.EdgeFluctuation,
	} {
		if math.IsNaN(v) || v < 0 || v >= 1 {
			return fmt.Errorf("%s %v outside [0, 1): %w", name, v, core.ErrInvalidInput)
		}
	}
	if math.IsNaN(o.MinEdgePower) || o.MinEdgePower < 0 {
		return fmt.Errorf("min edge power %v: %w", o.MinEdgePower, core.ErrInvalidInput)
	}
	if math.IsNaN(o.StatusFlipProbability) || o.StatusFlipProbability < 0 || o.StatusFlipProbability > 1 {
		return fmt.Errorf("status flip probability %v outside [0, 1]: %w", o.StatusFlipProbability, core.ErrInvalidInput)
	}
	return nil
}

// NewRand returns a PCG source. Seed 0 seeds from the wall clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

type simEdge struct {
	from, to string
	base     float64
}

// Engine holds the loaded grid and computes ticks from it
//
// An Engine is not safe for concurrent use.
type Engine struct {
	opts    Options
	profile *Profile
	rng     Rand
	log     *zap.Logger

	nodes  []core.Node
	edges  []simEdge
	loaded bool
}

// NewEngine creates an engine drawing from rng. A nil rng gets a
// time-seeded source.
func NewEngine(opts Options, rng Rand, log *zap.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{opts: opts, profile: DefaultProfile(), rng: rng, log: log}, nil
}

// Profile returns the multiplier table in use
func (e *Engine) Profile() *Profile { return e.profile }

// Load replaces the grid. Node ids must be unique and every edge must
// reference loaded nodes; on error the previous grid stays loaded.
func (e *Engine) Load(nodes []core.Node, edges []core.Edge) error {
	index := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return fmt.Errorf("node %d: duplicate id %q: %w", i, n.ID, core.ErrInvalidInput)
		}
		if err := core.ValidateNode(n); err != nil {
			return err
		}
		if math.IsNaN(n.Base) || math.IsInf(n.Base, 0) {
			return fmt.Errorf("node %q: base %v not finite: %w", n.ID, n.Base, core.ErrInvalidInput)
		}
		index[n.ID] = struct{}{}
	}

	simEdges := make([]simEdge, 0, len(edges))
	for i, ed := range edges {
		_, okFrom := index[ed.From]
		_, okTo := index[ed.To]
		if !okFrom || !okTo {
			return fmt.Errorf("edge %d (%s -> %s): dangling endpoint: %w", i, ed.From, ed.To, core.ErrInvalidInput)
		}
		if math.IsNaN(ed.Capacity) || math.IsInf(ed.Capacity, 0) {
			return fmt.Errorf("edge %d: base power %v not finite: %w", i, ed.Capacity, core.ErrInvalidInput)
		}
		simEdges = append(simEdges, simEdge{from: ed.From, to: ed.To, base: ed.Capacity})
	}

	e.nodes = append(make([]core.Node, 0, len(nodes)), nodes...)
	e.edges = simEdges
	e.loaded = true
	e.log.Debug("grid loaded", zap.Int("nodes", len(e.nodes)), zap.Int("edges", len(e.edges)))
	return nil
}

// Loaded reports whether Load has succeeded
func (e *Engine) Loaded() bool { return e.loaded }

// NodeCount returns the number of loaded nodes
func (e *Engine) NodeCount() int { return len(e.nodes) }

// EdgeCount returns the number of loaded edges
func (e *Engine) EdgeCount() int { return len(e.edges) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// uniform draws from [-1, 1]
func (e *Engine) uniform() float64 {
	return 2*e.rng.Float64() - 1
}

// Tick computes node values and edge power at clock. Output order matches
// load order.
func (e *Engine) Tick(clock core.Clock) ([]core.NodeState, []core.EdgeState, error) {
	if !e.loaded {
		return nil, nil, fmt.Errorf("simulation tick: %w", core.ErrNotInitialized)
	}
	if !finite(clock.Hour) || !finite(clock.Minute) {
		return nil, nil, fmt.Errorf("simulation tick at %v: %w", clock, core.ErrInvalidInput)
	}

	variation := Variation(e.opts.VariationAmplitude, clock.Minute)
	nodes := make([]core.NodeState, len(e.nodes))
	for i, n := range e.nodes {
		value := n.Base
		if !n.IsLive {
			mult := e.profile.Multiplier(n.Category, clock.Hour)
			value = math.Max(0, n.Base*mult*(1+variation)*(1+e.opts.NodeJitter*e.uniform()))
		}
		nodes[i] = core.NodeState{ID: n.ID, Value: value, Status: e.flip(n.Status)}
	}

	genMult := e.profile.Multiplier(core.Generator, clock.Hour)
	edges := make([]core.EdgeState, len(e.edges))
	for i, ed := range e.edges {
		power := ed.base * genMult * (1 + e.opts.EdgeFluctuation*e.uniform())
		edges[i] = core.EdgeState{From: ed.from, To: ed.to, Power: math.Max(e.opts.MinEdgePower, power)}
	}
	return nodes, edges, nil
}

// flip toggles Active and Idle with the configured probability.
// Maintenance is left alone and takes no draw.
func (e *Engine) flip(s core.Status) core.Status {
	if s == core.Maintenance {
		return s
	}
	if e.rng.Float64() >= e.opts.StatusFlipProbability {
		return s
	}
	if s == core.Active {
		return core.Idle
	}
	return core.Active
}
