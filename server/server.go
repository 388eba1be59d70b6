// Package server is the reference host harness: it loads a topology into
// the grid kernel, runs the simulated clock and streams JSON frames to
// browsers over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gridkernel/config"
	"gridkernel/core"
	"gridkernel/host"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	settings *config.Settings
	client   *host.Client
	topo     *Topology
	engine   *Engine
	hub      *Hub
	log      *zap.Logger
}

// New loads topo into client and wires the tick loop to the hub
func New(settings *config.Settings, client *host.Client, topo *Topology, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := client.LoadPoints(topo.Points()); err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	if err := client.LoadGrid(topo.Nodes, topo.Edges); err != nil {
		return nil, fmt.Errorf("load grid: %w", err)
	}
	if err := client.SetGraph(topo.Nodes, topo.Edges); err != nil {
		return nil, fmt.Errorf("set graph: %w", err)
	}

	interval := time.Duration(settings.Server.UpdateIntervalMs) * time.Millisecond
	now := time.Now()
	engine, err := NewEngine(client, interval, settings.Server.MinutesPerTick, core.ClockAt(now.Hour(), now.Minute()), log.Named("engine"))
	if err != nil {
		return nil, err
	}
	hub := NewHub(client, engine, topo, settings.Server.CurveIntensity, settings.Server.CurveSegments, log.Named("hub"))
	engine.OnFrame(func(f *TickFrame) { hub.Broadcast(f) })

	log.Info("grid loaded",
		zap.Int("nodes", len(topo.Nodes)),
		zap.Int("edges", len(topo.Edges)),
		zap.String("backend", client.Backend()))

	return &Server{
		settings: settings,
		client:   client,
		topo:     topo,
		engine:   engine,
		hub:      hub,
		log:      log,
	}, nil
}

func (s *Server) Engine() *Engine { return s.engine }
func (s *Server) Hub() *Hub       { return s.hub }

// Run serves HTTP and ticks until ctx is done, then shuts both down
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.settings.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.engine.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.hub.Close()
		return err
	})
	return g.Wait()
}
