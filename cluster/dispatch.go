package cluster

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gridkernel/core"
)

// Mode forces or frees the backend choice
type Mode int

const (
	ModeAuto Mode = iota
	ModeKernel
	ModeHost
)

// ParseMode maps the config spelling to a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "kernel":
		return ModeKernel, nil
	case "host":
		return ModeHost, nil
	}
	return ModeAuto, fmt.Errorf("unknown cluster backend %q: %w", s, core.ErrInvalidInput)
}

// Dispatcher routes clustering calls to the kernel provider when it reports
// itself available and to the host fallback otherwise. Callers only see the
// Provider contract; an unavailable kernel is never reported as an error.
//
// A Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	primary  Provider
	fallback Provider
	mode     Mode
	opts     Options
	log      *zap.Logger

	points []core.Point
	loaded map[Provider]bool
	active Provider
}

// NewDispatcher wires a primary (kernel) and a fallback (host) provider.
// primary may be nil when no kernel is built in.
func NewDispatcher(primary, fallback Provider, mode Mode, opts Options, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		primary:  primary,
		fallback: fallback,
		mode:     mode,
		opts:     opts,
		log:      log,
		loaded:   make(map[Provider]bool),
	}
}

func (d *Dispatcher) Name() string { return "dispatch(" + d.Active().Name() + ")" }

// Available is always true: the fallback answers when the kernel cannot
func (d *Dispatcher) Available() bool { return true }

// Active returns the provider that would answer the next call
func (d *Dispatcher) Active() Provider {
	p := d.fallback
	if d.mode != ModeHost && d.primary != nil && d.primary.Available() {
		p = d.primary
	}
	if p != d.active {
		if d.active != nil {
			d.log.Info("cluster backend switched",
				zap.String("from", d.active.Name()),
				zap.String("to", p.Name()))
		}
		d.active = p
	}
	return p
}

func (d *Dispatcher) demote(p Provider, err error) {
	d.log.Info("cluster backend unavailable, using fallback",
		zap.String("backend", p.Name()),
		zap.Error(err))
	delete(d.loaded, p)
	d.active = d.fallback
}

// ensure loads the last point set into p if it has not seen it yet
func (d *Dispatcher) ensure(p Provider) error {
	if d.points == nil || d.loaded[p] {
		return nil
	}
	if err := p.LoadPoints(d.points); err != nil {
		return err
	}
	d.loaded[p] = true
	return nil
}

// LoadPoints replaces the point set on the active provider. Other providers
// load lazily when they are first asked.
func (d *Dispatcher) LoadPoints(points []core.Point) error {
	d.points = append(make([]core.Point, 0, len(points)), points...)
	d.loaded = make(map[Provider]bool)

	p := d.Active()
	err := d.ensure(p)
	if errors.Is(err, core.ErrUnavailable) && p != d.fallback {
		d.demote(p, err)
		return d.ensure(d.fallback)
	}
	return err
}

// GetClusters answers from the active provider, falling back on ErrUnavailable
func (d *Dispatcher) GetClusters(bounds core.Bounds, zoom int) ([]core.Cluster, error) {
	p := d.Active()
	if err := d.ensure(p); err != nil && !errors.Is(err, core.ErrUnavailable) {
		return nil, err
	}
	clusters, err := p.GetClusters(bounds, zoom)
	if errors.Is(err, core.ErrUnavailable) && p != d.fallback {
		d.demote(p, err)
		if err := d.ensure(d.fallback); err != nil {
			return nil, err
		}
		return d.fallback.GetClusters(bounds, zoom)
	}
	return clusters, err
}

// ExpansionZoom asks the active provider. Cluster ids are provider specific,
// so an unavailable kernel degrades to the zoom heuristic, not to the fallback.
func (d *Dispatcher) ExpansionZoom(clusterID int64, zoom int) (int, error) {
	p := d.Active()
	z, err := p.ExpansionZoom(clusterID, zoom)
	if errors.Is(err, core.ErrUnavailable) {
		return d.opts.ApproxExpansionZoom(zoom), nil
	}
	return z, err
}

// GetChildren asks the active provider for the markers a cluster splits
// into. The kernel keeps no hierarchy, so on that path the answer is empty.
func (d *Dispatcher) GetChildren(clusterID int64) ([]core.Cluster, error) {
	p := d.Active()
	children, err := p.GetChildren(clusterID)
	if errors.Is(err, core.ErrUnavailable) {
		return []core.Cluster{}, nil
	}
	return children, err
}

// GetLeaves asks the active provider. The kernel keeps no membership index,
// so on that path the answer is empty.
func (d *Dispatcher) GetLeaves(clusterID int64, limit, offset int) ([]core.Point, error) {
	p := d.Active()
	leaves, err := p.GetLeaves(clusterID, limit, offset)
	if errors.Is(err, core.ErrUnavailable) {
		return []core.Point{}, nil
	}
	return leaves, err
}
