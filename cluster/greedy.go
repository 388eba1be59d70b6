package cluster

import (
	"fmt"

	"gridkernel/core"
)

// Greedy is the single-pass clusterer run inside the kernel. It keeps the
// projected point set only; every query clusters the points inside the
// bounds from scratch, so it cannot answer hierarchy questions.
type Greedy struct {
	opts   Options
	points []core.Point
	sites  []site
	idBase int64
	loaded bool
}

// NewGreedy creates an empty clusterer
func NewGreedy(opts Options) (*Greedy, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Greedy{opts: opts}, nil
}

// Options returns the active options
func (g *Greedy) Options() Options { return g.opts }

// LoadPoints replaces the point set
func (g *Greedy) LoadPoints(points []core.Point) error {
	if err := validatePoints(points); err != nil {
		return err
	}
	g.points = append(g.points[:0], points...)
	g.sites = g.sites[:0]
	for i, p := range g.points {
		x, y := projectLngLat(p.Lng, p.Lat)
		g.sites = append(g.sites, site{x: x, y: y, lng: p.Lng, lat: p.Lat, count: 1, order: i})
	}
	g.idBase = idBase(g.points)
	g.loaded = true
	return nil
}

// Reset forgets the loaded points
func (g *Greedy) Reset() {
	g.points = nil
	g.sites = nil
	g.idBase = 0
	g.loaded = false
}

// Len returns the number of loaded points
func (g *Greedy) Len() int { return len(g.points) }

// GetClusters clusters the points inside bounds at zoom. Singletons keep the
// point id; clusters get ids counting up from one past the largest point id.
func (g *Greedy) GetClusters(bounds core.Bounds, zoom int) ([]core.Cluster, error) {
	if !g.loaded {
		return nil, fmt.Errorf("greedy clusters: %w", core.ErrNotInitialized)
	}
	ok, err := prepareQuery(bounds)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.Cluster{}, nil
	}

	parts := bounds.Parts()
	var inside []site
	for i, p := range g.points {
		if containsAny(parts, p.Lng, p.Lat) {
			inside = append(inside, g.sites[i])
		}
	}

	groups := sweepGroups(inside, g.opts.RadiusAt(zoom))
	clusters := make([]core.Cluster, 0, len(groups))
	next := g.idBase
	for _, group := range groups {
		if len(group) == 1 {
			p := g.points[inside[group[0]].order]
			clusters = append(clusters, core.Cluster{Lat: p.Lat, Lng: p.Lng, Count: 1, ID: p.ID})
			continue
		}
		lng, lat, count := centroid(inside, group)
		clusters = append(clusters, core.Cluster{Lat: lat, Lng: lng, Count: count, ID: next})
		next++
	}
	return clusters, nil
}
