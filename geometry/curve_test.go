package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/core"
)

// offset is the signed distance of p from the line through a and b
func offset(a, b, p orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	return (dx*(p[1]-a[1]) - dy*(p[0]-a[0])) / math.Hypot(dx, dy)
}

func TestCurveEndpointsAreExact(t *testing.T) {
	tests := []struct {
		name      string
		from, to  orb.Point
		intensity float64
		segments  int
	}{
		{"east", orb.Point{0, 0}, orb.Point{10, 0}, 0.2, 16},
		{"west", orb.Point{10, 0}, orb.Point{0, 0}, 0.2, 16},
		{"geo pair", orb.Point{13.405, 52.52}, orb.Point{-0.1276, 51.5072}, 0.15, 32},
		{"single segment", orb.Point{1, 1}, orb.Point{2, 3}, 0.5, 1},
		{"straight", orb.Point{-3, 4}, orb.Point{5, -6}, 0, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts, err := GenerateCurve(tt.from, tt.to, tt.intensity, tt.segments)
			require.NoError(t, err)
			require.Len(t, pts, tt.segments+1)
			assert.Equal(t, tt.from, pts[0])
			assert.Equal(t, tt.to, pts[len(pts)-1])
		})
	}
}

func TestControlPointOffset(t *testing.T) {
	from, to := orb.Point{0, 0}, orb.Point{3, 4}
	c := ControlPoint(from, to, 0.25)

	assert.InDelta(t, 5*0.25, math.Abs(offset(from, to, c)), 1e-9)
	// the control point sits over the chord midpoint
	along := (c[0]-1.5)*3 + (c[1]-2)*4
	assert.InDelta(t, 0, along, 1e-9)
}

func TestCurveMidpointOffset(t *testing.T) {
	from, to := orb.Point{-2, 1}, orb.Point{6, 7}
	pts, err := GenerateCurve(from, to, 0.3, 10)
	require.NoError(t, err)

	dist := math.Hypot(8, 6)
	assert.InDelta(t, dist*0.3/2, math.Abs(offset(from, to, pts[5])), 1e-9)
}

func TestCurveBendsDeterministically(t *testing.T) {
	a, b := orb.Point{0, 0}, orb.Point{10, 0}
	ab := ControlPoint(a, b, 0.2)
	ba := ControlPoint(b, a, 0.2)

	// both directions bend to the same side of the line
	assert.InDelta(t, ab[0], ba[0], 1e-12)
	assert.InDelta(t, ab[1], ba[1], 1e-12)
	assert.Equal(t, ab, ControlPoint(a, b, 0.2))

	first, err := GenerateCurve(a, b, 0.2, 12)
	require.NoError(t, err)
	second, err := GenerateCurve(a, b, 0.2, 12)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSegmentsOnlyChangeResolution(t *testing.T) {
	from, to := orb.Point{1, 2}, orb.Point{9, -4}
	coarse, err := GenerateCurve(from, to, 0.2, 4)
	require.NoError(t, err)
	fine, err := GenerateCurve(from, to, 0.2, 8)
	require.NoError(t, err)

	for i, p := range coarse {
		assert.InDelta(t, p[0], fine[2*i][0], 1e-9)
		assert.InDelta(t, p[1], fine[2*i][1], 1e-9)
	}
	assert.Greater(t, CurveLength(fine), math.Hypot(8, 6))
}

func TestZeroLengthCurve(t *testing.T) {
	p := orb.Point{4, 4}
	pts, err := GenerateCurve(p, p, 0.5, 3)
	require.NoError(t, err)
	for _, q := range pts {
		assert.Equal(t, p, q)
	}
	assert.Zero(t, CurveLength(pts))
}

func TestGenerateCurveRejectsBadInput(t *testing.T) {
	_, err := GenerateCurve(orb.Point{0, 0}, orb.Point{1, 1}, 0.2, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = GenerateCurve(orb.Point{math.NaN(), 0}, orb.Point{1, 1}, 0.2, 4)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = GenerateCurve(orb.Point{0, 0}, orb.Point{1, 1}, math.Inf(1), 4)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
