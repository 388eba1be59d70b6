package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gridkernel/core"
)

// NodeSpec is one node entry of a topology file
type NodeSpec struct {
	ID       string  `yaml:"id"`
	Category string  `yaml:"category"`
	Lng      float64 `yaml:"lng"`
	Lat      float64 `yaml:"lat"`
	Status   string  `yaml:"status"`
	Base     float64 `yaml:"base"`
	Live     bool    `yaml:"live"`
}

// EdgeSpec is one edge entry of a topology file
type EdgeSpec struct {
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Capacity float64 `yaml:"capacity"`
	Load     float64 `yaml:"load"`
	Weight   float64 `yaml:"weight"`
}

type topologyFile struct {
	Nodes []NodeSpec `yaml:"nodes"`
	Edges []EdgeSpec `yaml:"edges"`
}

// Topology is the grid the host feeds into the kernel
type Topology struct {
	Nodes []core.Node
	Edges []core.Edge
	index map[string]int
}

// LoadTopology reads a YAML topology file
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	return ParseTopology(data)
}

// ParseTopology decodes and validates a YAML topology
func ParseTopology(data []byte) (*Topology, error) {
	var f topologyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse topology: %v: %w", err, core.ErrInvalidInput)
	}

	nodes := make([]core.Node, len(f.Nodes))
	for i, spec := range f.Nodes {
		if spec.ID == "" {
			return nil, fmt.Errorf("node %d: missing id: %w", i, core.ErrInvalidInput)
		}
		cat, err := core.ParseCategory(spec.Category)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
		status, err := core.ParseStatus(spec.Status)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
		if err := core.ValidatePosition(spec.Lng, spec.Lat); err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
		nodes[i] = core.Node{
			ID:       spec.ID,
			Category: cat,
			Lng:      spec.Lng,
			Lat:      spec.Lat,
			Status:   status,
			Base:     spec.Base,
			IsLive:   spec.Live,
		}
	}

	edges := make([]core.Edge, len(f.Edges))
	for i, spec := range f.Edges {
		edges[i] = core.Edge{
			From:     spec.From,
			To:       spec.To,
			Capacity: spec.Capacity,
			Load:     spec.Load,
			Weight:   spec.Weight,
		}
	}
	return NewTopology(nodes, edges)
}

// NewTopology indexes nodes by id and checks every edge endpoint
func NewTopology(nodes []core.Node, edges []core.Edge) (*Topology, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q: %w", n.ID, core.ErrInvalidInput)
		}
		index[n.ID] = i
	}
	for i, e := range edges {
		if _, ok := index[e.From]; !ok {
			return nil, fmt.Errorf("edge %d: unknown node %q: %w", i, e.From, core.ErrInvalidInput)
		}
		if _, ok := index[e.To]; !ok {
			return nil, fmt.Errorf("edge %d: unknown node %q: %w", i, e.To, core.ErrInvalidInput)
		}
	}
	return &Topology{Nodes: nodes, Edges: edges, index: index}, nil
}

// Node looks a node up by id
func (t *Topology) Node(id string) (core.Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return core.Node{}, false
	}
	return t.Nodes[i], true
}

// Points returns the clustering input: one point per node, id = node index
func (t *Topology) Points() []core.Point {
	points := make([]core.Point, len(t.Nodes))
	for i, n := range t.Nodes {
		points[i] = core.Point{Lat: n.Lat, Lng: n.Lng, ID: int64(i)}
	}
	return points
}

// DemoTopology is a small city grid used when no topology file is set
func DemoTopology() *Topology {
	nodes := []core.Node{
		{ID: "solar-tempelhof", Category: core.Generator, Lng: 13.4019, Lat: 52.4731, Base: 180},
		{ID: "wind-pankow", Category: core.Generator, Lng: 13.4010, Lat: 52.5690, Base: 120},
		{ID: "chp-mitte", Category: core.Generator, Lng: 13.3889, Lat: 52.5170, Base: 250, IsLive: true},
		{ID: "sub-north", Category: core.Transformer, Lng: 13.3950, Lat: 52.5450, Base: 400},
		{ID: "sub-south", Category: core.Transformer, Lng: 13.4100, Lat: 52.4900, Base: 400},
		{ID: "sub-east", Category: core.Transformer, Lng: 13.4600, Lat: 52.5150, Base: 300, Status: core.Maintenance},
		{ID: "battery-west", Category: core.Storage, Lng: 13.3100, Lat: 52.5100, Base: 90},
		{ID: "battery-east", Category: core.Storage, Lng: 13.4700, Lat: 52.5000, Base: 60, Status: core.Idle},
		{ID: "homes-kreuzberg", Category: core.Consumer, Lng: 13.4030, Lat: 52.4990, Base: 140},
		{ID: "homes-prenzlauer", Category: core.Consumer, Lng: 13.4240, Lat: 52.5390, Base: 110},
		{ID: "offices-mitte", Category: core.Consumer, Lng: 13.3880, Lat: 52.5200, Base: 160},
		{ID: "factory-spandau", Category: core.Consumer, Lng: 13.2000, Lat: 52.5350, Base: 210},
	}
	edges := []core.Edge{
		{From: "solar-tempelhof", To: "sub-south", Capacity: 150},
		{From: "wind-pankow", To: "sub-north", Capacity: 100},
		{From: "chp-mitte", To: "sub-north", Capacity: 200},
		{From: "chp-mitte", To: "sub-south", Capacity: 120},
		{From: "sub-north", To: "homes-prenzlauer", Capacity: 120},
		{From: "sub-north", To: "offices-mitte", Capacity: 160},
		{From: "sub-north", To: "battery-west", Capacity: 80},
		{From: "sub-south", To: "homes-kreuzberg", Capacity: 140},
		{From: "sub-south", To: "sub-east", Capacity: 100},
		{From: "sub-east", To: "battery-east", Capacity: 60},
		{From: "battery-west", To: "factory-spandau", Capacity: 90},
		{From: "battery-east", To: "homes-prenzlauer", Capacity: 50},
	}
	t, err := NewTopology(nodes, edges)
	if err != nil {
		panic(err)
	}
	return t
}
