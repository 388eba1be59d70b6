// Command gridkernel runs the grid kernel harness: a WebSocket server that
// streams the simulated grid, plus one-shot queries against a topology.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gridkernel/config"
	"gridkernel/host"
	"gridkernel/kernel"
	"gridkernel/logging"
	"gridkernel/server"
)

var (
	configPath   string
	topologyPath string
	verbose      bool
	strict       bool

	settings *config.Settings
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gridkernel",
	Short: "Geospatial energy grid kernel",
	Long: `gridkernel clusters grid assets, simulates their output over the day,
routes power between nodes and bends the connecting lines for display.

Settings come from gridkernel.yaml (or --config) with GRIDKERNEL_* env overrides.
Without grid.topology_file a built-in demo grid is used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if verbose {
			settings.Logging.Level = "debug"
		}
		if strict {
			settings.Kernel.Strict = true
		}
		if topologyPath != "" {
			settings.Grid.TopologyFile = topologyPath
		}
		logger, err = logging.New(settings.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "settings file")
	rootCmd.PersistentFlags().StringVarP(&topologyPath, "topology", "t", "", "topology YAML file (overrides grid.topology_file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "surface caller errors instead of returning empty results")

	rootCmd.AddCommand(serveCmd, simulateCmd, profileCmd, pathCmd, clustersCmd, curveCmd)
}

// newClient builds a host client over a lazily started kernel
func newClient() (*host.Client, error) {
	backend := kernel.NewLazy(settings.KernelOptions(), settings.Backend(), logger.Named("kernel"))
	return host.NewClient(backend, host.Options{
		Strict:      settings.Kernel.Strict,
		ClusterMode: settings.ClusterMode(),
	}, logger.Named("host"))
}

func loadTopology() (*server.Topology, error) {
	if settings.Grid.TopologyFile == "" {
		return server.DemoTopology(), nil
	}
	return server.LoadTopology(settings.Grid.TopologyFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
