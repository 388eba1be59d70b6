package core

import (
	"fmt"
	"strings"
)

// Category is the role a node plays in the grid
type Category int

const (
	Generator Category = iota
	Storage
	Consumer
	Transformer
)

// NumCategories is the number of node categories, used to size profile tables
const NumCategories = 4

func (c Category) String() string {
	switch c {
	case Generator:
		return "generator"
	case Storage:
		return "storage"
	case Consumer:
		return "consumer"
	case Transformer:
		return "transformer"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Valid reports whether c is one of the four known categories
func (c Category) Valid() bool {
	return c >= Generator && c <= Transformer
}

// ParseCategory maps a textual category (case-insensitive) to a Category
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generator":
		return Generator, nil
	case "storage":
		return Storage, nil
	case "consumer":
		return Consumer, nil
	case "transformer":
		return Transformer, nil
	}
	return 0, fmt.Errorf("unknown category %q: %w", s, ErrInvalidInput)
}

// Status is the operational state of a node
type Status int

const (
	Active Status = iota
	Idle
	Maintenance
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Idle:
		return "idle"
	case Maintenance:
		return "maintenance"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s >= Active && s <= Maintenance
}

// ParseStatus maps a textual status to a Status. Empty means Active.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return Active, nil
	case "idle":
		return Idle, nil
	case "maintenance":
		return Maintenance, nil
	}
	return 0, fmt.Errorf("unknown status %q: %w", s, ErrInvalidInput)
}

// Node is a point entity of the grid topology
type Node struct {
	ID       string
	Category Category
	Lng      float64 // degrees
	Lat      float64 // degrees
	Status   Status
	Base     float64 // nominal output, load or charge
	IsLive   bool    // Base comes from a real sensor reading
}

// Edge is a directed transfer between two nodes
type Edge struct {
	From     string
	To       string
	Capacity float64 // base power
	Load     float64
	Weight   float64 // explicit path cost, <= 0 means derive one
}

// MaxExactID is the largest integer id a double carries without loss
const MaxExactID = 1 << 53

// Point is a clustering input record
type Point struct {
	Lat float64
	Lng float64
	ID  int64
}

// Cluster is one clustering output record. Count == 1 means ID is the
// original point id, otherwise ID is a synthetic cluster id.
type Cluster struct {
	Lat   float64
	Lng   float64
	Count int
	ID    int64
}

// IsCluster reports whether the record aggregates more than one point
func (c Cluster) IsCluster() bool {
	return c.Count > 1
}

// Clock is the simulated time of day driving the multiplier curves
type Clock struct {
	Hour   float64 // decimal hour [0, 24)
	Minute float64 // minute of hour [0, 60)
}

// ClockAt builds a Clock from whole hours and minutes
func ClockAt(hour, minute int) Clock {
	return Clock{Hour: float64(hour) + float64(minute)/60.0, Minute: float64(minute)}
}

// Advance moves the clock forward by the given number of minutes, wrapping at midnight
func (c Clock) Advance(minutes float64) Clock {
	total := c.Hour*60 + minutes
	day := 24.0 * 60.0
	for total >= day {
		total -= day
	}
	for total < 0 {
		total += day
	}
	hour := total / 60.0
	whole := float64(int(hour))
	return Clock{Hour: hour, Minute: (hour - whole) * 60.0}
}

func (c Clock) String() string {
	h := int(c.Hour)
	return fmt.Sprintf("%02d:%02d", h%24, int(c.Minute)%60)
}

// PathResult is an ordered node sequence plus its total cost
type PathResult struct {
	Nodes []string
	Cost  float64
}

// NodeState is the per-tick derived view of a node
type NodeState struct {
	ID     string
	Value  float64
	Status Status
}

// EdgeState is the per-tick derived power of an edge
type EdgeState struct {
	From  string
	To    string
	Power float64
}
