package kernel

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/buffer"
	"gridkernel/core"
)

func newKernel(t *testing.T, capacity int) *Kernel {
	t.Helper()
	opts := DefaultOptions()
	opts.Capacity = capacity
	opts.Seed = 1
	k, err := New(opts, nil)
	require.NoError(t, err)
	return k
}

func input(t *testing.T, k *Kernel) []float64 {
	t.Helper()
	a, err := k.Arena()
	require.NoError(t, err)
	return a.Input()
}

func output(t *testing.T, k *Kernel) []float64 {
	t.Helper()
	a, err := k.Arena()
	require.NoError(t, err)
	return a.Output()
}

var triple = []core.Point{
	{Lat: 52.5000, Lng: 13.4000, ID: 1},
	{Lat: 52.5005, Lng: 13.4005, ID: 2},
	{Lat: 52.5010, Lng: 13.4000, ID: 3},
}

func TestKernelClusters(t *testing.T) {
	k := newKernel(t, 64)

	_, err := k.GetClusters(-180, -90, 180, 90, 0)
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	_, err = buffer.EncodePoints(input(t, k), triple)
	require.NoError(t, err)
	n, err := k.LoadPoints(len(triple))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := k.GetClusters(-180, -90, 180, 90, 0)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	clusters, err := buffer.DecodeClusters(output(t, k), count)
	require.NoError(t, err)
	assert.Equal(t, 3, clusters[0].Count)
	assert.Equal(t, int64(4), clusters[0].ID)

	count, err = k.GetClusters(-180, -90, 180, 90, 18)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	clusters, err = buffer.DecodeClusters(output(t, k), count)
	require.NoError(t, err)
	for _, c := range clusters {
		assert.Equal(t, 1, c.Count)
	}

	count, err = k.GetClusters(10, 10, 10, 20, 0)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = k.GetClusters(0, 20, 10, 10, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestKernelLoadPointsRejectsOverflow(t *testing.T) {
	k := newKernel(t, 6)
	_, err := k.LoadPoints(3)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = k.LoadPoints(-1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestKernelOutputGrows(t *testing.T) {
	// 4 spread points fit the input region but their clusters do not fit the output
	k := newKernel(t, 12)
	points := []core.Point{
		{Lat: 0, Lng: 0, ID: 1}, {Lat: 10, Lng: 10, ID: 2},
		{Lat: 20, Lng: 20, ID: 3}, {Lat: 30, Lng: 30, ID: 4},
	}
	_, err := buffer.EncodePoints(input(t, k), points)
	require.NoError(t, err)
	_, err = k.LoadPoints(4)
	require.NoError(t, err)

	gen := k.Generation()
	count, err := k.GetClusters(-180, -90, 180, 90, 18)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Greater(t, k.Generation(), gen)
	assert.Equal(t, k.Capacity(), k.OutputPtr())

	clusters, err := buffer.DecodeClusters(output(t, k), count)
	require.NoError(t, err)
	assert.Equal(t, int64(3), clusters[2].ID)
}

func encodeGrid(t *testing.T, k *Kernel, nodes []core.Node, edges []buffer.IndexedEdge, graph bool) {
	t.Helper()
	in := input(t, k)
	off, err := buffer.EncodeNodes(in, nodes)
	require.NoError(t, err)
	if graph {
		_, err = buffer.EncodeGraphEdges(in[off:], edges)
	} else {
		_, err = buffer.EncodeEdges(in[off:], edges)
	}
	require.NoError(t, err)
}

func TestKernelTick(t *testing.T) {
	k := newKernel(t, 256)

	_, err := k.Tick(12, 0)
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	nodes := []core.Node{
		{Category: core.Generator, Base: 100, Lng: 13, Lat: 52},
		{Category: core.Consumer, Base: 55, IsLive: true, Lng: 13.1, Lat: 52.1},
	}
	edges := []buffer.IndexedEdge{{From: 0, To: 1, Capacity: 40}}
	encodeGrid(t, k, nodes, edges, false)
	n, err := k.LoadGrid(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := k.Tick(12, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, records)

	values, statuses, powers, err := buffer.DecodeTick(output(t, k), 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100, values[0], 100*0.021)
	assert.Equal(t, 55.0, values[1])
	assert.Len(t, statuses, 2)
	assert.InDelta(t, 40, powers[0], 40*0.101)

	night, err := k.Tick(2, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, night)
	values, _, _, err = buffer.DecodeTick(output(t, k), 2, 1)
	require.NoError(t, err)
	assert.Less(t, values[0], 10.0)
	assert.Equal(t, 55.0, values[1])

	_, err = k.Tick(12, math.Inf(1))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestKernelLoadGridRejectsDanglingEdge(t *testing.T) {
	k := newKernel(t, 64)
	encodeGrid(t, k, []core.Node{{Category: core.Storage}}, []buffer.IndexedEdge{{From: 0, To: 0}}, false)
	in := input(t, k)
	in[buffer.NodeIn.Size(1)+1] = 3

	_, err := k.LoadGrid(1, 1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestKernelPath(t *testing.T) {
	k := newKernel(t, 64)

	_, err := k.FindPath(0, 1)
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	nodes := []core.Node{{}, {}, {}}
	edges := []buffer.IndexedEdge{{From: 0, To: 1, Weight: 1}, {From: 1, To: 2, Weight: 1}}
	encodeGrid(t, k, nodes, edges, true)
	_, err = k.SetGraph(3, 2)
	require.NoError(t, err)

	n, err := k.FindPath(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	idx, cost, ok, err := buffer.DecodePath(output(t, k))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Equal(t, 2.0, cost)

	n, err = k.FindPath(2, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, _, ok, err = buffer.DecodePath(output(t, k))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = k.FindPath(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKernelCurve(t *testing.T) {
	k := newKernel(t, 8)

	n, err := k.GenerateCurve(0, 0, 10, 0, 0.2, 20)
	require.NoError(t, err)
	assert.Equal(t, 21, n)

	points, err := buffer.DecodeCurve(output(t, k), n)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{0, 0}, points[0])
	assert.Equal(t, orb.Point{10, 0}, points[20])

	_, err = k.GenerateCurve(0, 0, 1, 1, 0.2, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestKernelLifecycle(t *testing.T) {
	k := newKernel(t, 32)
	_, err := buffer.EncodePoints(input(t, k), triple)
	require.NoError(t, err)
	_, err = k.LoadPoints(3)
	require.NoError(t, err)

	require.NoError(t, k.Reset())
	_, err = k.GetClusters(-180, -90, 180, 90, 0)
	assert.ErrorIs(t, err, core.ErrNotInitialized, "reset drops loaded points")

	k.Dispose()
	assert.False(t, k.Available())
	assert.Equal(t, -1, k.InputPtr())
	assert.Equal(t, -1, k.OutputPtr())
	assert.Nil(t, k.Memory())
	_, err = k.LoadPoints(0)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	_, err = k.Tick(1, 1)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.ErrorIs(t, k.Reset(), core.ErrUnavailable)

	require.NoError(t, k.Init())
	assert.True(t, k.Available())
	assert.Equal(t, 0, k.InputPtr())
}

func TestKernelRejectsOverlappingCalls(t *testing.T) {
	k := newKernel(t, 16)
	a, err := k.Arena()
	require.NoError(t, err)

	lease, err := a.Checkout()
	require.NoError(t, err)
	_, err = k.GenerateCurve(0, 0, 1, 1, 0.1, 2)
	assert.ErrorIs(t, err, core.ErrBusy)
	assert.ErrorIs(t, k.Reset(), core.ErrBusy)
	lease.Return()

	_, err = k.GenerateCurve(0, 0, 1, 1, 0.1, 2)
	assert.NoError(t, err)
}

func TestNewRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Capacity = 0
	_, err := New(opts, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	opts = DefaultOptions()
	opts.Cluster.Radius = -1
	_, err = New(opts, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
