package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/core"
)

func nodes(ids ...string) []core.Node {
	out := make([]core.Node, len(ids))
	for i, id := range ids {
		out[i] = core.Node{ID: id, Category: core.Transformer}
	}
	return out
}

func loaded(t *testing.T, n []core.Node, e []core.Edge) *Graph {
	t.Helper()
	g := NewGraph(WeightCapacity)
	require.NoError(t, g.SetGraph(n, e))
	return g
}

func TestFindPathPrefersCheaperRoute(t *testing.T) {
	g := loaded(t, nodes("A", "B", "C"), []core.Edge{
		{From: "A", To: "B", Capacity: 1},
		{From: "B", To: "C", Capacity: 1},
		{From: "A", To: "C", Weight: 5},
	})

	res, err := g.FindPath("A", "C")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"A", "B", "C"}, res.Nodes)
	assert.Equal(t, 2.0, res.Cost)
}

func TestFindPathIsDirected(t *testing.T) {
	g := loaded(t, nodes("A", "B"), []core.Edge{{From: "A", To: "B", Capacity: 2}})

	res, err := g.FindPath("B", "A")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = g.FindPath("A", "B")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 0.5, res.Cost)
}

func TestFindPathTieBreaksByInsertionOrder(t *testing.T) {
	edges := []core.Edge{
		{From: "A", To: "B", Weight: 1},
		{From: "A", To: "C", Weight: 1},
		{From: "B", To: "D", Weight: 1},
		{From: "C", To: "D", Weight: 1},
	}
	g := loaded(t, nodes("A", "B", "C", "D"), edges)
	for i := 0; i < 20; i++ {
		res, err := g.FindPath("A", "D")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, []string{"A", "B", "D"}, res.Nodes)
	}

	swapped := []core.Edge{edges[1], edges[0], edges[3], edges[2]}
	g = loaded(t, nodes("A", "B", "C", "D"), swapped)
	res, err := g.FindPath("A", "D")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "D"}, res.Nodes)
}

func TestFindPathEdgeCases(t *testing.T) {
	g := loaded(t, nodes("A", "B", "island"), []core.Edge{
		{From: "A", To: "A", Capacity: 3},
		{From: "A", To: "B", Capacity: 1},
	})

	tests := []struct {
		name     string
		from, to string
		want     *core.PathResult
	}{
		{"self edge", "A", "A", &core.PathResult{Nodes: []string{"A"}, Cost: 0}},
		{"same node without self edge", "island", "island", &core.PathResult{Nodes: []string{"island"}, Cost: 0}},
		{"disconnected", "A", "island", nil},
		{"unknown source", "Z", "B", nil},
		{"unknown target", "A", "Z", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.FindPath(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestFindPathBeforeSetGraph(t *testing.T) {
	g := NewGraph(WeightCapacity)
	_, err := g.FindPath("A", "B")
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	_, _, _, err = g.PathIndices(0, 1)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestSetGraphRejectsBadInput(t *testing.T) {
	g := loaded(t, nodes("A", "B"), []core.Edge{{From: "A", To: "B", Capacity: 1}})

	err := g.SetGraph(nodes("A", "B"), []core.Edge{{From: "A", To: "ghost"}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = g.SetGraph(nodes("A", "A"), nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	offGlobe := nodes("A", "B")
	offGlobe[1].Lng = 200
	err = g.SetGraph(offGlobe, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	// the previous graph survives every failure
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	res, err := g.FindPath("A", "B")
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestSetGraphReplaces(t *testing.T) {
	g := loaded(t, nodes("A", "B"), []core.Edge{{From: "A", To: "B", Capacity: 1}})
	require.NoError(t, g.SetGraph(nodes("X"), nil))

	res, err := g.FindPath("A", "B")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, g.NodeCount())
	assert.Zero(t, g.EdgeCount())
}

func TestEdgeWeight(t *testing.T) {
	a := core.Node{ID: "a", Lng: 0, Lat: 0}
	b := core.Node{ID: "b", Lng: 1, Lat: 0}

	assert.Equal(t, 3.0, EdgeWeight(WeightCapacity, core.Edge{Weight: 3, Capacity: 10}, a, b))
	assert.Equal(t, 0.25, EdgeWeight(WeightCapacity, core.Edge{Capacity: 4}, a, b))
	assert.Equal(t, 1.0, EdgeWeight(WeightCapacity, core.Edge{Capacity: 0}, a, b))
	assert.InDelta(t, 111.32, EdgeWeight(WeightDistance, core.Edge{Capacity: 4}, a, b), 0.1)
	assert.Equal(t, 3.0, EdgeWeight(WeightDistance, core.Edge{Weight: 3}, a, b))
}

func TestDistanceModePrefersShorterLines(t *testing.T) {
	n := []core.Node{
		{ID: "berlin", Lng: 13.40, Lat: 52.52},
		{ID: "leipzig", Lng: 12.37, Lat: 51.34},
		{ID: "hamburg", Lng: 9.99, Lat: 53.55},
		{ID: "munich", Lng: 11.58, Lat: 48.14},
	}
	e := []core.Edge{
		{From: "berlin", To: "hamburg", Capacity: 100},
		{From: "hamburg", To: "munich", Capacity: 100},
		{From: "berlin", To: "leipzig", Capacity: 1},
		{From: "leipzig", To: "munich", Capacity: 1},
	}

	byDistance := NewGraph(WeightDistance)
	require.NoError(t, byDistance.SetGraph(n, e))
	res, err := byDistance.FindPath("berlin", "munich")
	require.NoError(t, err)
	assert.Equal(t, []string{"berlin", "leipzig", "munich"}, res.Nodes)

	byCapacity := loaded(t, n, e)
	res, err = byCapacity.FindPath("berlin", "munich")
	require.NoError(t, err)
	assert.Equal(t, []string{"berlin", "hamburg", "munich"}, res.Nodes)
	assert.InDelta(t, 0.02, res.Cost, 1e-12)
}

func TestPathIndices(t *testing.T) {
	g := loaded(t, nodes("0", "1", "2"), []core.Edge{
		{From: "0", To: "1", Weight: 1.5},
		{From: "1", To: "2", Weight: 2},
	})

	idx, cost, ok, err := g.PathIndices(0, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Equal(t, 3.5, cost)

	_, _, ok, err = g.PathIndices(2, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = g.PathIndices(0, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReachable(t *testing.T) {
	g := loaded(t, nodes("A", "B", "C", "D"), []core.Edge{
		{From: "A", To: "C", Weight: 2},
		{From: "A", To: "B", Capacity: 2},
		{From: "B", To: "D", Weight: 1},
	})

	assert.Equal(t, []string{"A", "C", "B", "D"}, g.Reachable("A"))
	assert.Equal(t, []string{"C"}, g.Reachable("C"))
	assert.Nil(t, g.Reachable("nope"))
}

func TestParseWeightMode(t *testing.T) {
	m, err := ParseWeightMode("Distance")
	require.NoError(t, err)
	assert.Equal(t, WeightDistance, m)

	m, err = ParseWeightMode("")
	require.NoError(t, err)
	assert.Equal(t, WeightCapacity, m)

	_, err = ParseWeightMode("hops")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
