package core

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Bounds is a viewport box in degrees. West > East means the box crosses
// the antimeridian.
type Bounds struct {
	West  float64
	South float64
	East  float64
	North float64
}

// WorldBounds covers the whole map
var WorldBounds = Bounds{West: -180, South: -90, East: 180, North: 90}

// Validate rejects NaN edges and inverted latitude ranges
func (b Bounds) Validate() error {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds %v: non-finite edge: %w", b, ErrInvalidInput)
		}
	}
	if b.South > b.North {
		return fmt.Errorf("bounds %v: south above north: %w", b, ErrInvalidInput)
	}
	return nil
}

// Empty reports a box with zero width or zero height
func (b Bounds) Empty() bool {
	return b.West == b.East || b.South == b.North
}

// Parts converts the box into one or two orb bounds, splitting at the
// antimeridian when West > East.
func (b Bounds) Parts() []orb.Bound {
	south := clampLat(b.South)
	north := clampLat(b.North)
	west := NormalizeLongitude(b.West)
	east := NormalizeLongitude(b.East)
	if b.East-b.West >= 360 {
		west, east = -180, 180
	}
	if west <= east {
		return []orb.Bound{{Min: orb.Point{west, south}, Max: orb.Point{east, north}}}
	}
	return []orb.Bound{
		{Min: orb.Point{west, south}, Max: orb.Point{180, north}},
		{Min: orb.Point{-180, south}, Max: orb.Point{east, north}},
	}
}

// Contains reports whether a lon/lat position falls inside the box, edges inclusive
func (b Bounds) Contains(lng, lat float64) bool {
	p := orb.Point{lng, lat}
	for _, part := range b.Parts() {
		if part.Contains(p) {
			return true
		}
	}
	return false
}

// NormalizeLongitude wraps a longitude into [-180, 180]. 180 stays 180.
func NormalizeLongitude(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

// ValidatePosition checks a lon/lat pair is finite and on the globe
func ValidatePosition(lng, lat float64) error {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("position (%v, %v) not finite: %w", lng, lat, ErrInvalidInput)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("position (%v, %v) out of range: %w", lng, lat, ErrInvalidInput)
	}
	return nil
}

// ValidateNode checks a node's position, category and status
func ValidateNode(n Node) error {
	if !n.Category.Valid() || !n.Status.Valid() {
		return fmt.Errorf("node %q: category %d status %d: %w", n.ID, n.Category, n.Status, ErrInvalidInput)
	}
	if err := ValidatePosition(n.Lng, n.Lat); err != nil {
		return fmt.Errorf("node %q: %w", n.ID, err)
	}
	return nil
}

// Position returns the node location as an orb point (lon, lat)
func (n Node) Position() orb.Point {
	return orb.Point{n.Lng, n.Lat}
}
