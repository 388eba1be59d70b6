package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/core"
)

const sampleTopology = `
nodes:
  - {id: plant, category: generator, lng: 13.40, lat: 52.52, base: 120}
  - {id: homes, category: Consumer, lng: 13.45, lat: 52.50, base: 80, status: idle}
  - {id: meter, category: consumer, lng: 13.41, lat: 52.53, base: 12.5, live: true}
edges:
  - {from: plant, to: homes, capacity: 100}
  - {from: plant, to: meter, capacity: 10, load: 4, weight: 2.5}
`

func TestParseTopology(t *testing.T) {
	topo, err := ParseTopology([]byte(sampleTopology))
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 3)
	require.Len(t, topo.Edges, 2)

	homes, ok := topo.Node("homes")
	require.True(t, ok)
	assert.Equal(t, core.Consumer, homes.Category)
	assert.Equal(t, core.Idle, homes.Status)

	meter, _ := topo.Node("meter")
	assert.True(t, meter.IsLive)
	assert.Equal(t, 12.5, meter.Base)

	assert.Equal(t, core.Edge{From: "plant", To: "meter", Capacity: 10, Load: 4, Weight: 2.5}, topo.Edges[1])

	_, ok = topo.Node("nowhere")
	assert.False(t, ok)
}

func TestParseTopologyRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "nodes: [\n"},
		{"missing id", "nodes:\n  - {category: generator, lng: 1, lat: 1}\n"},
		{"bad category", "nodes:\n  - {id: a, category: reactor, lng: 1, lat: 1}\n"},
		{"bad status", "nodes:\n  - {id: a, category: storage, status: broken, lng: 1, lat: 1}\n"},
		{"off the globe", "nodes:\n  - {id: a, category: storage, lng: 1, lat: 91}\n"},
		{"duplicate id", "nodes:\n  - {id: a, category: storage, lng: 1, lat: 1}\n  - {id: a, category: storage, lng: 2, lat: 2}\n"},
		{"dangling edge", "nodes:\n  - {id: a, category: storage, lng: 1, lat: 1}\nedges:\n  - {from: a, to: b, capacity: 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTopology([]byte(tt.yaml))
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestLoadTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTopology), 0o644))

	topo, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Len(t, topo.Nodes, 3)

	_, err = LoadTopology(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDemoTopologyPoints(t *testing.T) {
	topo := DemoTopology()
	points := topo.Points()
	require.Len(t, points, len(topo.Nodes))
	for i, p := range points {
		assert.Equal(t, int64(i), p.ID)
		assert.Equal(t, topo.Nodes[i].Lat, p.Lat)
		assert.Equal(t, topo.Nodes[i].Lng, p.Lng)
	}
}
