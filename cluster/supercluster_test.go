package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/core"
)

func loadedSupercluster(t *testing.T, points []core.Point) *Supercluster {
	t.Helper()
	s, err := NewSupercluster(DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadPoints(points))
	return s
}

func topCluster(t *testing.T, s *Supercluster) core.Cluster {
	t.Helper()
	clusters, err := s.GetClusters(core.WorldBounds, 0)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.True(t, clusters[0].IsCluster())
	return clusters[0]
}

func TestSuperclusterChildrenSplitTheCluster(t *testing.T) {
	s := loadedSupercluster(t, tightTriple)
	top := topCluster(t, s)

	children, err := s.GetChildren(top.ID)
	require.NoError(t, err)
	require.NotEmpty(t, children)

	total := 0
	for _, c := range children {
		total += c.Count
	}
	assert.Equal(t, 3, total)

	zoom, err := s.ExpansionZoom(top.ID, 0)
	require.NoError(t, err)
	assert.Greater(t, zoom, 0)
	assert.LessOrEqual(t, zoom, DefaultOptions().MaxZoom+1)

	// at the expansion zoom the cluster is no longer one marker
	markers, err := s.GetClusters(core.WorldBounds, zoom)
	require.NoError(t, err)
	assert.Greater(t, len(markers), 1)
}

func TestSuperclusterLeavesPaging(t *testing.T) {
	s := loadedSupercluster(t, tightTriple)
	top := topCluster(t, s)

	first, err := s.GetLeaves(top.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	rest, err := s.GetLeaves(top.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	all, err := s.GetLeaves(top.ID, 0, 0)
	require.NoError(t, err)
	ids := map[int64]bool{}
	for _, p := range all {
		ids[p.ID] = true
	}
	assert.Equal(t, map[int64]bool{101: true, 102: true, 103: true}, ids)
	assert.Equal(t, all[:2], first)
	assert.Equal(t, all[2:], rest)

	none, err := s.GetLeaves(top.ID, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.GetLeaves(top.ID, 5, -1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestSuperclusterUnknownIDs(t *testing.T) {
	s := loadedSupercluster(t, tightTriple)

	_, err := s.ExpansionZoom(101, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput, "point ids are not cluster ids")

	_, err = s.GetChildren(999999)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = s.GetLeaves(999999, 1, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	empty, err := NewSupercluster(DefaultOptions(), nil)
	require.NoError(t, err)
	_, err = empty.ExpansionZoom(1, 0)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestSuperclusterDuplicatesNeverExpand(t *testing.T) {
	s := loadedSupercluster(t, []core.Point{
		{Lat: 1, Lng: 1, ID: 1},
		{Lat: 1, Lng: 1, ID: 2},
	})
	top := topCluster(t, s)

	zoom, err := s.ExpansionZoom(top.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().MaxZoom+1, zoom)
}

func TestSuperclusterClipsPartialClusters(t *testing.T) {
	s := loadedSupercluster(t, tightTriple)

	// the box holds only the first point of the triple
	box := core.Bounds{West: 13.39, South: 52.4995, East: 13.4001, North: 52.5002}
	clusters, err := s.GetClusters(box, 0)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, core.Cluster{Lat: 52.5, Lng: 13.4, Count: 1, ID: 101}, clusters[0])

	// two of three inside keeps the cluster id with a reduced count
	box = core.Bounds{West: 13.39, South: 52.4995, East: 13.41, North: 52.5007}
	clusters, err = s.GetClusters(box, 0)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].Count)
	assert.Equal(t, topCluster(t, s).ID, clusters[0].ID)
	assert.InDelta(t, 52.50025, clusters[0].Lat, 1e-9)
	assert.InDelta(t, 13.40025, clusters[0].Lng, 1e-9)
}
