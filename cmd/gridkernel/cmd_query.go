package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"gridkernel/core"
	"gridkernel/geometry"
)

var (
	clusterBBox    string
	clusterZoom    int
	curveIntensity float64
	curveSegments  int
)

var pathCmd = &cobra.Command{
	Use:   "path [from] [to]",
	Short: "Find the cheapest route between two nodes",
	Args:  cobra.ExactArgs(2),
	RunE:  runPath,
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Cluster the grid nodes inside a bounding box",
	Long: `Prints one line per cluster or single node visible in --bbox at --zoom.

Example:
  gridkernel clusters --bbox 13.0,52.3,13.8,52.7 --zoom 11`,
	RunE: runClusters,
}

var curveCmd = &cobra.Command{
	Use:   "curve [lng,lat] [lng,lat]",
	Short: "Sample the curved line drawn between two positions",
	Args:  cobra.ExactArgs(2),
	RunE:  runCurve,
}

func init() {
	clustersCmd.Flags().StringVar(&clusterBBox, "bbox", "-180,-85,180,85", "west,south,east,north")
	clustersCmd.Flags().IntVar(&clusterZoom, "zoom", 0, "map zoom level")
	curveCmd.Flags().Float64Var(&curveIntensity, "intensity", 0, "bend as a fraction of the chord (default server.curve_intensity)")
	curveCmd.Flags().IntVar(&curveSegments, "segments", 0, "segments to sample (default server.curve_segments)")
}

// parseFloats reads a comma separated list of exactly n numbers
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%q: want %d comma separated numbers: %w", s, n, core.ErrInvalidInput)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, core.ErrInvalidInput)
		}
		out[i] = v
	}
	return out, nil
}

func runPath(cmd *cobra.Command, args []string) error {
	topo, err := loadTopology()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Dispose()
	if err := client.SetGraph(topo.Nodes, topo.Edges); err != nil {
		return err
	}

	res, err := client.FindPath(args[0], args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res == nil {
		fmt.Fprintf(out, "no path from %s to %s\n", args[0], args[1])
		reach, err := client.Reachable(args[0])
		if err != nil {
			return err
		}
		if len(reach) > 1 {
			fmt.Fprintf(out, "reachable from %s: %s\n", args[0], strings.Join(reach[1:], ", "))
		}
		return nil
	}
	fmt.Fprintf(out, "%s\ncost %.6f (%d hops)\n", strings.Join(res.Nodes, " -> "), res.Cost, len(res.Nodes)-1)
	return nil
}

func runClusters(cmd *cobra.Command, args []string) error {
	box, err := parseFloats(clusterBBox, 4)
	if err != nil {
		return err
	}
	topo, err := loadTopology()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Dispose()
	if err := client.LoadPoints(topo.Points()); err != nil {
		return err
	}

	bounds := core.Bounds{West: box[0], South: box[1], East: box[2], North: box[3]}
	clusters, err := client.GetClusters(bounds, clusterZoom)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range clusters {
		if c.IsCluster() {
			fmt.Fprintf(out, "cluster %d\t%d nodes\t%.5f,%.5f\n", c.ID, c.Count, c.Lng, c.Lat)
			continue
		}
		name := strconv.FormatInt(c.ID, 10)
		if c.ID >= 0 && c.ID < int64(len(topo.Nodes)) {
			name = topo.Nodes[c.ID].ID
		}
		fmt.Fprintf(out, "node %s\t%.5f,%.5f\n", name, c.Lng, c.Lat)
	}
	fmt.Fprintf(out, "%d markers via %s\n", len(clusters), client.Backend())
	return nil
}

func runCurve(cmd *cobra.Command, args []string) error {
	from, err := parseFloats(args[0], 2)
	if err != nil {
		return err
	}
	to, err := parseFloats(args[1], 2)
	if err != nil {
		return err
	}
	intensity := settings.Server.CurveIntensity
	if cmd.Flags().Changed("intensity") {
		intensity = curveIntensity
	}
	segments := settings.Server.CurveSegments
	if cmd.Flags().Changed("segments") {
		segments = curveSegments
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Dispose()

	points, err := client.GenerateCurve(orb.Point{from[0], from[1]}, orb.Point{to[0], to[1]}, intensity, segments)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range points {
		fmt.Fprintf(out, "%.6f,%.6f\n", p[0], p[1])
	}
	fmt.Fprintf(out, "length %.6f\n", geometry.CurveLength(points))
	return nil
}
