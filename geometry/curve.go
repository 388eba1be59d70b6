// Package geometry builds the curved polylines drawn along grid edges.
package geometry

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"

	"gridkernel/core"
)

func vec(p orb.Point) mgl64.Vec2 { return mgl64.Vec2{p[0], p[1]} }

func point(v mgl64.Vec2) orb.Point { return orb.Point{v[0], v[1]} }

// bendSign is +1 when from sorts before to by (x, y) and -1 otherwise, so a
// pair always bends the same way for a given direction.
func bendSign(from, to orb.Point) float64 {
	if from[0] < to[0] || (from[0] == to[0] && from[1] < to[1]) {
		return 1
	}
	return -1
}

// ControlPoint is the quadratic Bézier control point: the chord midpoint
// pushed along the chord normal by chord length * intensity.
func ControlPoint(from, to orb.Point, intensity float64) orb.Point {
	a, b := vec(from), vec(to)
	chord := b.Sub(a)
	mid := a.Add(b).Mul(0.5)
	dist := chord.Len()
	if dist == 0 {
		return point(mid)
	}
	normal := mgl64.Vec2{-chord[1], chord[0]}.Mul(1 / dist)
	return point(mid.Add(normal.Mul(dist * intensity * bendSign(from, to))))
}

// GenerateCurve samples the Bézier from from to to at segments+1 evenly
// spaced parameters. The first and last samples are the endpoints exactly.
func GenerateCurve(from, to orb.Point, intensity float64, segments int) ([]orb.Point, error) {
	if segments < 1 {
		return nil, fmt.Errorf("curve segments %d: %w", segments, core.ErrInvalidInput)
	}
	for _, v := range []float64{from[0], from[1], to[0], to[1], intensity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("curve input %v: %w", v, core.ErrInvalidInput)
		}
	}

	out := make([]orb.Point, segments+1)
	if from == to {
		for i := range out {
			out[i] = from
		}
		return out, nil
	}

	p0, p1, p2 := vec(from), vec(ControlPoint(from, to, intensity)), vec(to)
	out[0] = from
	for i := 1; i < segments; i++ {
		t := float64(i) / float64(segments)
		u := 1 - t
		out[i] = point(p0.Mul(u * u).Add(p1.Mul(2 * u * t)).Add(p2.Mul(t * t)))
	}
	out[segments] = to
	return out, nil
}

// CurveLength is the length of the sampled polyline
func CurveLength(points []orb.Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += vec(points[i]).Sub(vec(points[i-1])).Len()
	}
	return total
}
