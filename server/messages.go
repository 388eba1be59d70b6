package server

import (
	"github.com/paulmach/orb"

	"gridkernel/core"
)

// Inbound message types
const (
	MsgViewport = "viewport"
	MsgPath     = "path"
	MsgClock    = "clock"
	MsgSpeed    = "speed"
	MsgExpand   = "expand"
)

// Outbound frame types
const (
	FrameHello    = "hello"
	FrameTick     = "tick"
	FrameClusters = "clusters"
	FramePath     = "path"
	FrameExpand   = "expand"
	FrameError    = "error"
)

// Inbound is any message a browser sends. Type selects the payload.
type Inbound struct {
	Type     string     `json:"type"`
	Viewport *Viewport  `json:"viewport,omitempty"`
	Path     *PathQuery `json:"path,omitempty"`
	Clock    *ClockSet  `json:"clock,omitempty"`
	Speed    *float64   `json:"minutesPerTick,omitempty"`
	Expand   *Expand    `json:"expand,omitempty"`
}

type Viewport struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
	Zoom  int     `json:"zoom"`
}

func (v Viewport) Bounds() core.Bounds {
	return core.Bounds{West: v.West, South: v.South, East: v.East, North: v.North}
}

type PathQuery struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Expand asks what a clicked cluster holds. Limit caps the leaves returned.
type Expand struct {
	ClusterID int64 `json:"clusterId"`
	Zoom      int   `json:"zoom"`
	Limit     int   `json:"limit"`
}

// ClockSet moves the simulated clock to a historical time of day
type ClockSet struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type HelloFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Backend  string `json:"backend"`
	Nodes    int    `json:"nodes"`
	Edges    int    `json:"edges"`
}

type NodeFrame struct {
	ID     string  `json:"id"`
	Value  float64 `json:"value"`
	Status string  `json:"status"`
}

type EdgeFrame struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Power float64 `json:"power"`
}

// TickFrame is one simulated instant
type TickFrame struct {
	Type  string      `json:"type"`
	Seq   uint64      `json:"seq"`
	Clock string      `json:"clock"`
	Hour  float64     `json:"hour"`
	Nodes []NodeFrame `json:"nodes"`
	Edges []EdgeFrame `json:"edges"`
}

type ClusterFrame struct {
	ID    int64   `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Count int     `json:"count"`
}

type ClustersFrame struct {
	Type     string         `json:"type"`
	Zoom     int            `json:"zoom"`
	Clusters []ClusterFrame `json:"clusters"`
}

// PathFrame carries the node sequence plus one curved polyline per hop
type PathFrame struct {
	Type     string         `json:"type"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Found    bool           `json:"found"`
	Nodes    []string       `json:"nodes"`
	Cost     float64        `json:"cost"`
	Segments [][][2]float64 `json:"segments"`
}

type LeafFrame struct {
	ID   int64   `json:"id"`
	Node string  `json:"node"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// ExpandFrame answers an expand message. Children and Leaves are empty when
// the answering backend keeps no cluster hierarchy.
type ExpandFrame struct {
	Type          string         `json:"type"`
	ClusterID     int64          `json:"clusterId"`
	ExpansionZoom int            `json:"expansionZoom"`
	Children      []ClusterFrame `json:"children"`
	Leaves        []LeafFrame    `json:"leaves"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newTickFrame(seq uint64, clock core.Clock, nodes []core.NodeState, edges []core.EdgeState) *TickFrame {
	f := &TickFrame{
		Type:  FrameTick,
		Seq:   seq,
		Clock: clock.String(),
		Hour:  clock.Hour,
		Nodes: make([]NodeFrame, len(nodes)),
		Edges: make([]EdgeFrame, len(edges)),
	}
	for i, n := range nodes {
		f.Nodes[i] = NodeFrame{ID: n.ID, Value: n.Value, Status: n.Status.String()}
	}
	for i, e := range edges {
		f.Edges[i] = EdgeFrame{From: e.From, To: e.To, Power: e.Power}
	}
	return f
}

func clusterFrames(clusters []core.Cluster) []ClusterFrame {
	out := make([]ClusterFrame, len(clusters))
	for i, c := range clusters {
		out[i] = ClusterFrame{ID: c.ID, Lat: c.Lat, Lng: c.Lng, Count: c.Count}
	}
	return out
}

func newClustersFrame(zoom int, clusters []core.Cluster) *ClustersFrame {
	return &ClustersFrame{Type: FrameClusters, Zoom: zoom, Clusters: clusterFrames(clusters)}
}

func polyline(points []orb.Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}
