package cluster

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	mercatorHalfWorld = orb.EarthRadius * math.Pi
	mercatorMaxLat    = 85.0511287798066
)

// projectLngLat maps degrees onto the unit Web-Mercator square, x east and
// y south, latitude clamped where the projection is clamped.
func projectLngLat(lng, lat float64) (x, y float64) {
	lat = math.Max(-mercatorMaxLat, math.Min(mercatorMaxLat, lat))
	m := project.WGS84.ToMercator(orb.Point{lng, lat})
	return 0.5 + m[0]/(2*mercatorHalfWorld), 0.5 - m[1]/(2*mercatorHalfWorld)
}

// unprojectXY is the inverse of projectLngLat
func unprojectXY(x, y float64) (lng, lat float64) {
	p := project.Mercator.ToWGS84(orb.Point{(x - 0.5) * 2 * mercatorHalfWorld, (0.5 - y) * 2 * mercatorHalfWorld})
	return p[0], p[1]
}

// site is a projected position with its weight and stable ordering key
type site struct {
	x, y  float64
	lng   float64
	lat   float64
	count int
	order int
}

// sweepGroups partitions sites into radius groups. Sites are visited in
// (x, y, order) order; each unassigned seed takes every unassigned site
// within radius. The result lists groups by seed, members in sweep order.
func sweepGroups(sites []site, radius float64) [][]int {
	idx := make([]int, len(sites))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		sa, sb := sites[idx[a]], sites[idx[b]]
		if sa.x != sb.x {
			return sa.x < sb.x
		}
		if sa.y != sb.y {
			return sa.y < sb.y
		}
		return sa.order < sb.order
	})

	r2 := radius * radius
	assigned := make([]bool, len(sites))
	var groups [][]int
	for a, i := range idx {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		seed := sites[i]
		group := []int{i}
		for _, j := range idx[a+1:] {
			other := sites[j]
			if other.x-seed.x > radius {
				break
			}
			if assigned[j] {
				continue
			}
			dx := other.x - seed.x
			dy := other.y - seed.y
			if dx*dx+dy*dy <= r2 {
				group = append(group, j)
				assigned[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// centroid is the count-weighted mean position of a group, computed as an
// offset from the first member so identical positions stay exact.
func centroid(sites []site, group []int) (lng, lat float64, count int) {
	ref := sites[group[0]]
	var dLng, dLat float64
	for _, i := range group {
		s := sites[i]
		w := float64(s.count)
		dLng += (s.lng - ref.lng) * w
		dLat += (s.lat - ref.lat) * w
		count += s.count
	}
	n := float64(count)
	return ref.lng + dLng/n, ref.lat + dLat/n, count
}

func containsAny(parts []orb.Bound, lng, lat float64) bool {
	p := orb.Point{lng, lat}
	for _, b := range parts {
		if b.Contains(p) {
			return true
		}
	}
	return false
}
