package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gridkernel/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream the simulated grid over WebSocket",
	Long: `Loads the topology, starts the tick loop and serves:
  /ws          tick, clusters and path frames
  /healthz     backend and client count
  /api/frame   the latest tick frame as JSON`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		settings.Server.Port = servePort
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

	srv, err := server.New(settings, client, topo, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
