package buffer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"

	"gridkernel/core"
)

// Layout describes one fixed record shape on the wire
type Layout struct {
	Name   string
	Fields []string
}

// Stride is the number of doubles per record
func (l Layout) Stride() int { return len(l.Fields) }

// Size returns the doubles needed for n records
func (l Layout) Size(n int) int { return n * l.Stride() }

var (
	PointIn     = Layout{"point_in", []string{"lat", "lng", "id"}}
	ClusterOut  = Layout{"cluster_out", []string{"lat", "lng", "count", "id"}}
	NodeIn      = Layout{"node_in", []string{"lng", "lat", "category", "status", "base", "live"}}
	NodeOut     = Layout{"node_out", []string{"value", "status"}}
	EdgeIn      = Layout{"edge_in", []string{"from", "to", "base_power", "load"}}
	EdgeOut     = Layout{"edge_out", []string{"power"}}
	GraphEdgeIn = Layout{"graph_edge_in", []string{"from", "to", "weight"}}
	CurveOut    = Layout{"curve_out", []string{"x", "y"}}
)

// PathHeader is the number of doubles before the node indices of a path record: [cost, n]
const PathHeader = 2

// MaxExactID is the largest integer a double carries without loss
const MaxExactID = core.MaxExactID

// IndexedEdge is an edge whose endpoints are record indices into the node block
type IndexedEdge struct {
	From     int
	To       int
	Capacity float64
	Load     float64
	Weight   float64
}

func need(l Layout, n int, region []float64) error {
	if n < 0 {
		return fmt.Errorf("%s: negative record count %d: %w", l.Name, n, core.ErrInvalidInput)
	}
	if l.Size(n) > len(region) {
		return fmt.Errorf("%s: %d records need %d doubles, region holds %d: %w",
			l.Name, n, l.Size(n), len(region), core.ErrInvalidInput)
	}
	return nil
}

// IDToFloat converts a record id to its wire form
func IDToFloat(id int64) (float64, error) {
	if id > MaxExactID || id < -MaxExactID {
		return 0, fmt.Errorf("id %d exceeds exact double range: %w", id, core.ErrInvalidInput)
	}
	return float64(id), nil
}

// FloatToID converts a wire id back, rejecting fractional or huge values
func FloatToID(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > MaxExactID {
		return 0, fmt.Errorf("id %v is not an exact integer: %w", v, core.ErrInvalidInput)
	}
	return int64(v), nil
}

func toIndex(v float64, n int) (int, error) {
	if v != math.Trunc(v) || v < 0 || v >= float64(n) {
		return 0, fmt.Errorf("index %v outside [0, %d): %w", v, n, core.ErrInvalidInput)
	}
	return int(v), nil
}

// EncodePoints writes point records and returns the doubles written
func EncodePoints(dst []float64, points []core.Point) (int, error) {
	if err := need(PointIn, len(points), dst); err != nil {
		return 0, err
	}
	for i, p := range points {
		id, err := IDToFloat(p.ID)
		if err != nil {
			return 0, err
		}
		o := i * 3
		dst[o], dst[o+1], dst[o+2] = p.Lat, p.Lng, id
	}
	return PointIn.Size(len(points)), nil
}

// DecodePoints reads n point records
func DecodePoints(src []float64, n int) ([]core.Point, error) {
	if err := need(PointIn, n, src); err != nil {
		return nil, err
	}
	points := make([]core.Point, n)
	for i := range points {
		o := i * 3
		id, err := FloatToID(src[o+2])
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		if err := core.ValidatePosition(src[o+1], src[o]); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		points[i] = core.Point{Lat: src[o], Lng: src[o+1], ID: id}
	}
	return points, nil
}

// EncodeClusters writes cluster records
func EncodeClusters(dst []float64, clusters []core.Cluster) (int, error) {
	if err := need(ClusterOut, len(clusters), dst); err != nil {
		return 0, err
	}
	for i, c := range clusters {
		id, err := IDToFloat(c.ID)
		if err != nil {
			return 0, err
		}
		o := i * 4
		dst[o], dst[o+1], dst[o+2], dst[o+3] = c.Lat, c.Lng, float64(c.Count), id
	}
	return ClusterOut.Size(len(clusters)), nil
}

// DecodeClusters reads n cluster records
func DecodeClusters(src []float64, n int) ([]core.Cluster, error) {
	if err := need(ClusterOut, n, src); err != nil {
		return nil, err
	}
	clusters := make([]core.Cluster, n)
	for i := range clusters {
		o := i * 4
		id, err := FloatToID(src[o+3])
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", i, err)
		}
		clusters[i] = core.Cluster{Lat: src[o], Lng: src[o+1], Count: int(src[o+2]), ID: id}
	}
	return clusters, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// EncodeNodes writes node records. Node ids do not travel; the record index is the id.
func EncodeNodes(dst []float64, nodes []core.Node) (int, error) {
	if err := need(NodeIn, len(nodes), dst); err != nil {
		return 0, err
	}
	for i, n := range nodes {
		o := i * 6
		dst[o] = n.Lng
		dst[o+1] = n.Lat
		dst[o+2] = float64(n.Category)
		dst[o+3] = float64(n.Status)
		dst[o+4] = n.Base
		dst[o+5] = boolToFloat(n.IsLive)
	}
	return NodeIn.Size(len(nodes)), nil
}

// DecodeNodes reads n node records, naming each node by its record index
func DecodeNodes(src []float64, n int) ([]core.Node, error) {
	if err := need(NodeIn, n, src); err != nil {
		return nil, err
	}
	nodes := make([]core.Node, n)
	for i := range nodes {
		o := i * 6
		cat := core.Category(int(src[o+2]))
		status := core.Status(int(src[o+3]))
		if !cat.Valid() || float64(cat) != src[o+2] {
			return nil, fmt.Errorf("node %d: category %v: %w", i, src[o+2], core.ErrInvalidInput)
		}
		if !status.Valid() || float64(status) != src[o+3] {
			return nil, fmt.Errorf("node %d: status %v: %w", i, src[o+3], core.ErrInvalidInput)
		}
		if err := core.ValidatePosition(src[o], src[o+1]); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes[i] = core.Node{
			ID:       strconv.Itoa(i),
			Lng:      src[o],
			Lat:      src[o+1],
			Category: cat,
			Status:   status,
			Base:     src[o+4],
			IsLive:   src[o+5] != 0,
		}
	}
	return nodes, nil
}

// EncodeEdges writes simulation edge records
func EncodeEdges(dst []float64, edges []IndexedEdge) (int, error) {
	if err := need(EdgeIn, len(edges), dst); err != nil {
		return 0, err
	}
	for i, e := range edges {
		o := i * 4
		dst[o], dst[o+1], dst[o+2], dst[o+3] = float64(e.From), float64(e.To), e.Capacity, e.Load
	}
	return EdgeIn.Size(len(edges)), nil
}

// DecodeEdges reads m simulation edges; endpoints must index into nodeCount nodes
func DecodeEdges(src []float64, m, nodeCount int) ([]IndexedEdge, error) {
	if err := need(EdgeIn, m, src); err != nil {
		return nil, err
	}
	edges := make([]IndexedEdge, m)
	for i := range edges {
		o := i * 4
		from, err := toIndex(src[o], nodeCount)
		if err != nil {
			return nil, fmt.Errorf("edge %d from: %w", i, err)
		}
		to, err := toIndex(src[o+1], nodeCount)
		if err != nil {
			return nil, fmt.Errorf("edge %d to: %w", i, err)
		}
		edges[i] = IndexedEdge{From: from, To: to, Capacity: src[o+2], Load: src[o+3]}
	}
	return edges, nil
}

// EncodeGraphEdges writes path-finding edge records
func EncodeGraphEdges(dst []float64, edges []IndexedEdge) (int, error) {
	if err := need(GraphEdgeIn, len(edges), dst); err != nil {
		return 0, err
	}
	for i, e := range edges {
		o := i * 3
		dst[o], dst[o+1], dst[o+2] = float64(e.From), float64(e.To), e.Weight
	}
	return GraphEdgeIn.Size(len(edges)), nil
}

// DecodeGraphEdges reads m path-finding edges
func DecodeGraphEdges(src []float64, m, nodeCount int) ([]IndexedEdge, error) {
	if err := need(GraphEdgeIn, m, src); err != nil {
		return nil, err
	}
	edges := make([]IndexedEdge, m)
	for i := range edges {
		o := i * 3
		from, err := toIndex(src[o], nodeCount)
		if err != nil {
			return nil, fmt.Errorf("graph edge %d from: %w", i, err)
		}
		to, err := toIndex(src[o+1], nodeCount)
		if err != nil {
			return nil, fmt.Errorf("graph edge %d to: %w", i, err)
		}
		edges[i] = IndexedEdge{From: from, To: to, Weight: src[o+2]}
	}
	return edges, nil
}

// EncodeTick writes node states followed by edge powers
func EncodeTick(dst []float64, nodes []core.NodeState, edges []core.EdgeState) (int, error) {
	size := NodeOut.Size(len(nodes)) + EdgeOut.Size(len(edges))
	if size > len(dst) {
		return 0, fmt.Errorf("tick output needs %d doubles, region holds %d: %w", size, len(dst), core.ErrInvalidInput)
	}
	for i, n := range nodes {
		dst[i*2] = n.Value
		dst[i*2+1] = float64(n.Status)
	}
	off := NodeOut.Size(len(nodes))
	for i, e := range edges {
		dst[off+i] = e.Power
	}
	return size, nil
}

// DecodeTick reads n node states and m edge powers
func DecodeTick(src []float64, n, m int) ([]float64, []core.Status, []float64, error) {
	size := NodeOut.Size(n) + EdgeOut.Size(m)
	if n < 0 || m < 0 || size > len(src) {
		return nil, nil, nil, fmt.Errorf("tick output of %d+%d records: %w", n, m, core.ErrInvalidInput)
	}
	values := make([]float64, n)
	statuses := make([]core.Status, n)
	for i := 0; i < n; i++ {
		values[i] = src[i*2]
		statuses[i] = core.Status(int(src[i*2+1]))
	}
	powers := make([]float64, m)
	copy(powers, src[NodeOut.Size(n):size])
	return values, statuses, powers, nil
}

// EncodePath writes [cost, n, idx...]; an absent path is written as n = 0
func EncodePath(dst []float64, indices []int, cost float64) (int, error) {
	size := PathHeader + len(indices)
	if size > len(dst) {
		return 0, fmt.Errorf("path of %d nodes: %w", len(indices), core.ErrInvalidInput)
	}
	dst[0] = cost
	dst[1] = float64(len(indices))
	for i, idx := range indices {
		dst[PathHeader+i] = float64(idx)
	}
	return size, nil
}

// DecodePath reads a path record; ok is false when the kernel found no path
func DecodePath(src []float64) (indices []int, cost float64, ok bool, err error) {
	if len(src) < PathHeader {
		return nil, 0, false, fmt.Errorf("path header: %w", core.ErrInvalidInput)
	}
	n := int(src[1])
	if n < 0 || PathHeader+n > len(src) {
		return nil, 0, false, fmt.Errorf("path length %v: %w", src[1], core.ErrInvalidInput)
	}
	if n == 0 {
		return nil, 0, false, nil
	}
	indices = make([]int, n)
	for i := range indices {
		indices[i] = int(src[PathHeader+i])
	}
	return indices, src[0], true, nil
}

// EncodeCurve writes curve vertices
func EncodeCurve(dst []float64, points []orb.Point) (int, error) {
	if err := need(CurveOut, len(points), dst); err != nil {
		return 0, err
	}
	for i, p := range points {
		dst[i*2], dst[i*2+1] = p[0], p[1]
	}
	return CurveOut.Size(len(points)), nil
}

// DecodeCurve reads n curve vertices
func DecodeCurve(src []float64, n int) ([]orb.Point, error) {
	if err := need(CurveOut, n, src); err != nil {
		return nil, err
	}
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = orb.Point{src[i*2], src[i*2+1]}
	}
	return points, nil
}
