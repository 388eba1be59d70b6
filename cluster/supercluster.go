package cluster

import (
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"gridkernel/core"
)

// scNode is one marker of a precomputed zoom level
type scNode struct {
	lng, lat float64
	x, y     float64
	count    int
	id       int64
	point    int   // raw point index for single-point nodes, -1 for clusters
	children []int // indices into the next finer level
	bbox     orb.Bound
}

type clusterRef struct {
	zoom  int
	index int
}

// Supercluster is the hierarchical host-side clusterer. LoadPoints builds
// one level per zoom, from MaxZoom+1 (exact duplicates only) down to
// MinZoom, each level clustering the one above it.
//
// Cluster ids are idBase + seed<<5 + zoom+1, where seed is the index of the
// group's first member in the finer level, so ids never collide with point
// ids or with each other.
type Supercluster struct {
	opts   Options
	log    *zap.Logger
	points []core.Point
	raw    []scNode
	levels [][]scNode
	byID   map[int64]clusterRef
	idBase int64
	loaded bool
}

// NewSupercluster creates an empty index
func NewSupercluster(opts Options, log *zap.Logger) (*Supercluster, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Supercluster{opts: opts, log: log}, nil
}

func (s *Supercluster) Name() string    { return "supercluster" }
func (s *Supercluster) Available() bool { return true }

// rawZoom is the pseudo level holding the unclustered points
func (s *Supercluster) rawZoom() int { return s.opts.MaxZoom + 2 }

func (s *Supercluster) level(z int) []scNode {
	if z == s.rawZoom() {
		return s.raw
	}
	return s.levels[z-s.opts.MinZoom]
}

// LoadPoints replaces the point set and rebuilds every level
func (s *Supercluster) LoadPoints(points []core.Point) error {
	if err := validatePoints(points); err != nil {
		return err
	}
	s.points = append([]core.Point(nil), points...)
	s.idBase = idBase(s.points)
	s.byID = make(map[int64]clusterRef)

	s.raw = make([]scNode, len(s.points))
	for i, p := range s.points {
		x, y := projectLngLat(p.Lng, p.Lat)
		pt := orb.Point{p.Lng, p.Lat}
		s.raw[i] = scNode{lng: p.Lng, lat: p.Lat, x: x, y: y, count: 1, id: p.ID, point: i, bbox: orb.Bound{Min: pt, Max: pt}}
	}

	top := s.opts.MaxZoom + 1
	s.levels = make([][]scNode, top-s.opts.MinZoom+1)
	prev := s.raw
	for z := top; z >= s.opts.MinZoom; z-- {
		prev = s.clusterLevel(prev, z)
		s.levels[z-s.opts.MinZoom] = prev
	}
	s.loaded = true

	s.log.Debug("supercluster index built",
		zap.Int("points", len(s.points)),
		zap.Int("clusters", len(s.byID)),
		zap.Int("levels", len(s.levels)))
	return nil
}

func (s *Supercluster) clusterLevel(prev []scNode, z int) []scNode {
	sites := make([]site, len(prev))
	for i, n := range prev {
		sites[i] = site{x: n.x, y: n.y, lng: n.lng, lat: n.lat, count: n.count, order: i}
	}

	groups := sweepGroups(sites, s.opts.RadiusAt(z))
	next := make([]scNode, 0, len(groups))
	for _, group := range groups {
		if len(group) == 1 {
			n := prev[group[0]]
			n.children = []int{group[0]}
			next = append(next, n)
			continue
		}

		lng, lat, count := centroid(sites, group)
		x, y := projectLngLat(lng, lat)
		bbox := prev[group[0]].bbox
		for _, i := range group[1:] {
			bbox = bbox.Union(prev[i].bbox)
		}
		id := s.idBase + int64(group[0])<<5 + int64(z+1)
		s.byID[id] = clusterRef{zoom: z, index: len(next)}
		next = append(next, scNode{
			lng: lng, lat: lat, x: x, y: y,
			count:    count,
			id:       id,
			point:    -1,
			children: append([]int(nil), group...),
			bbox:     bbox,
		})
	}
	return next
}

// walkLeaves visits the raw point indices under a node in stable order.
// visit returns false to stop early.
func (s *Supercluster) walkLeaves(z, idx int, visit func(point int) bool) bool {
	n := s.level(z)[idx]
	if z == s.rawZoom() {
		return visit(n.point)
	}
	for _, c := range n.children {
		if !s.walkLeaves(z+1, c, visit) {
			return false
		}
	}
	return true
}

func (s *Supercluster) record(n scNode) core.Cluster {
	if n.count == 1 {
		p := s.points[n.point]
		return core.Cluster{Lat: p.Lat, Lng: p.Lng, Count: 1, ID: p.ID}
	}
	return core.Cluster{Lat: n.lat, Lng: n.lng, Count: n.count, ID: n.id}
}

// GetClusters returns the markers of the level for zoom, clipped to bounds:
// a cluster straddling the edge reports only its leaves inside the box.
func (s *Supercluster) GetClusters(bounds core.Bounds, zoom int) ([]core.Cluster, error) {
	if !s.loaded {
		return nil, fmt.Errorf("supercluster clusters: %w", core.ErrNotInitialized)
	}
	ok, err := prepareQuery(bounds)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.Cluster{}, nil
	}

	z := s.opts.clampZoom(zoom)
	parts := bounds.Parts()
	level := s.level(z)
	out := make([]core.Cluster, 0)
	for i, n := range level {
		if !intersectsAny(parts, n.bbox) {
			continue
		}
		if withinAny(parts, n.bbox) {
			out = append(out, s.record(n))
			continue
		}

		var inside []site
		s.walkLeaves(z, i, func(pi int) bool {
			p := s.points[pi]
			if containsAny(parts, p.Lng, p.Lat) {
				inside = append(inside, site{lng: p.Lng, lat: p.Lat, count: 1, order: pi})
			}
			return true
		})
		switch len(inside) {
		case 0:
		case 1:
			p := s.points[inside[0].order]
			out = append(out, core.Cluster{Lat: p.Lat, Lng: p.Lng, Count: 1, ID: p.ID})
		default:
			all := make([]int, len(inside))
			for j := range all {
				all[j] = j
			}
			lng, lat, count := centroid(inside, all)
			out = append(out, core.Cluster{Lat: lat, Lng: lng, Count: count, ID: n.id})
		}
	}
	return out, nil
}

func (s *Supercluster) lookup(clusterID int64) (clusterRef, error) {
	if !s.loaded {
		return clusterRef{}, fmt.Errorf("supercluster lookup: %w", core.ErrNotInitialized)
	}
	ref, ok := s.byID[clusterID]
	if !ok {
		return clusterRef{}, fmt.Errorf("no cluster with id %d: %w", clusterID, core.ErrInvalidInput)
	}
	return ref, nil
}

// ExpansionZoom returns the zoom at which the cluster first splits. Exact
// duplicates never split; they report MaxZoom+1.
func (s *Supercluster) ExpansionZoom(clusterID int64, _ int) (int, error) {
	ref, err := s.lookup(clusterID)
	if err != nil {
		return 0, err
	}
	if ref.zoom > s.opts.MaxZoom {
		return s.opts.MaxZoom + 1, nil
	}
	return ref.zoom + 1, nil
}

// GetChildren returns the markers a cluster splits into one zoom further in
func (s *Supercluster) GetChildren(clusterID int64) ([]core.Cluster, error) {
	ref, err := s.lookup(clusterID)
	if err != nil {
		return nil, err
	}
	n := s.level(ref.zoom)[ref.index]
	finer := s.level(ref.zoom + 1)
	children := make([]core.Cluster, 0, len(n.children))
	for _, c := range n.children {
		children = append(children, s.record(finer[c]))
	}
	return children, nil
}

// GetLeaves pages through the original points of a cluster
func (s *Supercluster) GetLeaves(clusterID int64, limit, offset int) ([]core.Point, error) {
	ref, err := s.lookup(clusterID)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("leaf offset %d: %w", offset, core.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultLeafLimit
	}

	leaves := make([]core.Point, 0, limit)
	skipped := 0
	s.walkLeaves(ref.zoom, ref.index, func(pi int) bool {
		if skipped < offset {
			skipped++
			return true
		}
		leaves = append(leaves, s.points[pi])
		return len(leaves) < limit
	})
	return leaves, nil
}

func intersectsAny(parts []orb.Bound, b orb.Bound) bool {
	for _, p := range parts {
		if p.Intersects(b) {
			return true
		}
	}
	return false
}

func withinAny(parts []orb.Bound, b orb.Bound) bool {
	for _, p := range parts {
		if p.Contains(b.Min) && p.Contains(b.Max) {
			return true
		}
	}
	return false
}
