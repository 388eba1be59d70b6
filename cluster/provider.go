// Package cluster groups point features into zoom-dependent clusters.
//
// Two implementations sit behind the same Provider contract: the kernel-side
// Greedy clusterer, which keeps no hierarchy and recomputes every query, and
// the host-side Supercluster, which precomputes one level per zoom and can
// answer expansion and leaf queries. Dispatcher picks between them at runtime.
package cluster

import (
	"fmt"
	"math"

	"gridkernel/core"
)

// Provider is the clustering contract shared by every backend
type Provider interface {
	Name() string
	Available() bool
	LoadPoints(points []core.Point) error
	GetClusters(bounds core.Bounds, zoom int) ([]core.Cluster, error)
	ExpansionZoom(clusterID int64, zoom int) (int, error)
	GetChildren(clusterID int64) ([]core.Cluster, error)
	GetLeaves(clusterID int64, limit, offset int) ([]core.Point, error)
}

// Options tunes clustering
type Options struct {
	Radius        float64 // cluster radius in pixels
	Extent        float64 // tile extent the radius is measured against
	MinZoom       int
	MaxZoom       int // above this zoom only identical coordinates merge
	ExpansionStep int // zoom increment reported when no hierarchy exists
}

// DefaultOptions mirrors the usual map defaults: 60px radius on 512px tiles
func DefaultOptions() Options {
	return Options{
		Radius:        60,
		Extent:        512,
		MinZoom:       0,
		MaxZoom:       16,
		ExpansionStep: 2,
	}
}

// maxSupportedZoom keeps zoom+2 inside the five low bits of a cluster id
const maxSupportedZoom = 24

// DefaultLeafLimit bounds GetLeaves when the caller passes no limit
const DefaultLeafLimit = 10

// Validate checks option ranges
func (o Options) Validate() error {
	if !(o.Radius > 0) || !(o.Extent > 0) {
		return fmt.Errorf("cluster radius %v and extent %v must be positive: %w", o.Radius, o.Extent, core.ErrInvalidInput)
	}
	if o.MinZoom < 0 || o.MaxZoom < o.MinZoom || o.MaxZoom > maxSupportedZoom {
		return fmt.Errorf("cluster zoom range [%d, %d] invalid: %w", o.MinZoom, o.MaxZoom, core.ErrInvalidInput)
	}
	if o.ExpansionStep < 1 {
		return fmt.Errorf("cluster expansion step %d: %w", o.ExpansionStep, core.ErrInvalidInput)
	}
	return nil
}

// RadiusAt converts the pixel radius to normalised world units at a zoom.
// Past MaxZoom it is zero, so only identical positions merge.
func (o Options) RadiusAt(zoom int) float64 {
	if zoom > o.MaxZoom {
		return 0
	}
	if zoom < o.MinZoom {
		zoom = o.MinZoom
	}
	return o.Radius / (o.Extent * math.Pow(2, float64(zoom)))
}

// ApproxExpansionZoom is the heuristic used where no hierarchy is tracked
func (o Options) ApproxExpansionZoom(zoom int) int {
	z := zoom + o.ExpansionStep
	if z > o.MaxZoom+1 {
		z = o.MaxZoom + 1
	}
	if z < o.MinZoom {
		z = o.MinZoom
	}
	return z
}

// clampZoom maps a query zoom onto the range of precomputed levels
func (o Options) clampZoom(zoom int) int {
	if zoom < o.MinZoom {
		return o.MinZoom
	}
	if zoom > o.MaxZoom+1 {
		return o.MaxZoom + 1
	}
	return zoom
}

// prepareQuery validates bounds. ok is false for a zero-area box, which
// yields an empty result rather than an error.
func prepareQuery(bounds core.Bounds) (ok bool, err error) {
	if err := bounds.Validate(); err != nil {
		return false, err
	}
	return !bounds.Empty(), nil
}

// idBase returns the first synthetic id that cannot collide with a point id
func idBase(points []core.Point) int64 {
	if len(points) == 0 {
		return 0
	}
	maxID := points[0].ID
	for _, p := range points[1:] {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	if maxID < 0 {
		return 0
	}
	return maxID + 1
}

// maxIDSpan is the widest synthetic id range a point set can need: the
// supercluster packs seed<<5 + zoom+1 on top of idBase.
func maxIDSpan(n int) int64 { return int64(n)<<5 + 32 }

func validatePoints(points []core.Point) error {
	for i, p := range points {
		if err := core.ValidatePosition(p.Lng, p.Lat); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		if p.ID < -core.MaxExactID {
			return fmt.Errorf("point %d: id %d below %d: %w", i, p.ID, int64(-core.MaxExactID), core.ErrInvalidInput)
		}
	}
	if len(points) == 0 {
		return nil
	}
	maxID := points[0].ID
	for _, p := range points[1:] {
		maxID = max(maxID, p.ID)
	}
	if span := maxIDSpan(len(points)); maxID > core.MaxExactID-span-1 {
		return fmt.Errorf("point ids up to %d leave no room for %d cluster ids: %w", maxID, span, core.ErrInvalidInput)
	}
	return nil
}
