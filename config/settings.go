// Package config loads gridkernel settings: defaults first, then an optional
// YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"gridkernel/cluster"
	"gridkernel/core"
	"gridkernel/kernel"
	"gridkernel/simulation"
	"gridkernel/topology"
)

// DefaultPath is where Load looks when no path is given
const DefaultPath = "gridkernel.yaml"

type Settings struct {
	Cluster    ClusterSettings    `yaml:"cluster"`
	Simulation SimulationSettings `yaml:"simulation"`
	Kernel     KernelSettings     `yaml:"kernel"`
	Server     ServerSettings     `yaml:"server"`
	Logging    LoggingSettings    `yaml:"logging"`
	Grid       GridSettings       `yaml:"grid"`
}

type ClusterSettings struct {
	Radius        float64 `yaml:"radius"` // pixels
	Extent        float64 `yaml:"extent"` // tile size the radius is measured against
	MinZoom       int     `yaml:"min_zoom"`
	MaxZoom       int     `yaml:"max_zoom"`
	ExpansionStep int     `yaml:"expansion_step"`
}

type SimulationSettings struct {
	VariationAmplitude    float64 `yaml:"variation_amplitude"`
	NodeJitter            float64 `yaml:"node_jitter"`
	EdgeFluctuation       float64 `yaml:"edge_fluctuation"`
	MinEdgePower          float64 `yaml:"min_edge_power"`
	StatusFlipProbability float64 `yaml:"status_flip_probability"`
	Seed                  uint64  `yaml:"seed"` // 0 seeds from the clock
}

type KernelSettings struct {
	Capacity int    `yaml:"capacity"` // doubles per arena region
	Strict   bool   `yaml:"strict"`
	Backend  string `yaml:"backend"` // auto, kernel or host
}

type ServerSettings struct {
	Port             int     `yaml:"port"`
	UpdateIntervalMs int     `yaml:"update_interval_ms"`
	MinutesPerTick   float64 `yaml:"minutes_per_tick"`
	CurveIntensity   float64 `yaml:"curve_intensity"`
	CurveSegments    int     `yaml:"curve_segments"`
}

type LoggingSettings struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type GridSettings struct {
	TopologyFile string `yaml:"topology_file"` // empty uses the built-in demo grid
	WeightMode   string `yaml:"weight_mode"`   // capacity or distance
}

// Default returns the stock settings
func Default() *Settings {
	co := cluster.DefaultOptions()
	so := simulation.DefaultOptions()
	return &Settings{
		Cluster: ClusterSettings{
			Radius:        co.Radius,
			Extent:        co.Extent,
			MinZoom:       co.MinZoom,
			MaxZoom:       co.MaxZoom,
			ExpansionStep: co.ExpansionStep,
		},
		Simulation: SimulationSettings{
			VariationAmplitude:    so.VariationAmplitude,
			NodeJitter:            so.NodeJitter,
			EdgeFluctuation:       so.EdgeFluctuation,
			MinEdgePower:          so.MinEdgePower,
			StatusFlipProbability: so.StatusFlipProbability,
		},
		Kernel: KernelSettings{
			Capacity: kernel.DefaultOptions().Capacity,
			Backend:  "auto",
		},
		Server: ServerSettings{
			Port:             8080,
			UpdateIntervalMs: 1000,
			MinutesPerTick:   1,
			CurveIntensity:   0.2,
			CurveSegments:    24,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
		},
		Grid: GridSettings{
			WeightMode: "capacity",
		},
	}
}

// Load reads settings from path. A missing file means defaults; env
// overrides apply either way.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath
	}
	s := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := s.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnvOverrides() error {
	if v := os.Getenv("GRIDKERNEL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIDKERNEL_PORT=%q: %w", v, core.ErrInvalidInput)
		}
		s.Server.Port = port
	}
	if v := os.Getenv("GRIDKERNEL_LOG_LEVEL"); v != "" {
		s.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GRIDKERNEL_STRICT"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GRIDKERNEL_STRICT=%q: %w", v, core.ErrInvalidInput)
		}
		s.Kernel.Strict = strict
	}
	if v := os.Getenv("GRIDKERNEL_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("GRIDKERNEL_SEED=%q: %w", v, core.ErrInvalidInput)
		}
		s.Simulation.Seed = seed
	}
	return nil
}

// Validate rejects settings the engines would refuse
func (s *Settings) Validate() error {
	if err := s.ClusterOptions().Validate(); err != nil {
		return err
	}
	if err := s.SimulationOptions().Validate(); err != nil {
		return err
	}
	if s.Kernel.Capacity <= 0 {
		return fmt.Errorf("kernel capacity %d: %w", s.Kernel.Capacity, core.ErrInvalidInput)
	}
	if _, err := kernel.ParseBackend(s.Kernel.Backend); err != nil {
		return err
	}
	if _, err := topology.ParseWeightMode(s.Grid.WeightMode); err != nil {
		return err
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server port %d: %w", s.Server.Port, core.ErrInvalidInput)
	}
	if s.Server.UpdateIntervalMs <= 0 {
		return fmt.Errorf("update interval %dms: %w", s.Server.UpdateIntervalMs, core.ErrInvalidInput)
	}
	if s.Server.CurveSegments < 1 {
		return fmt.Errorf("curve segments %d: %w", s.Server.CurveSegments, core.ErrInvalidInput)
	}
	switch s.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format %q: %w", s.Logging.Format, core.ErrInvalidInput)
	}
	return nil
}

// ClusterOptions converts the cluster section
func (s *Settings) ClusterOptions() cluster.Options {
	return cluster.Options{
		Radius:        s.Cluster.Radius,
		Extent:        s.Cluster.Extent,
		MinZoom:       s.Cluster.MinZoom,
		MaxZoom:       s.Cluster.MaxZoom,
		ExpansionStep: s.Cluster.ExpansionStep,
	}
}

// SimulationOptions converts the simulation section
func (s *Settings) SimulationOptions() simulation.Options {
	return simulation.Options{
		VariationAmplitude:    s.Simulation.VariationAmplitude,
		NodeJitter:            s.Simulation.NodeJitter,
		EdgeFluctuation:       s.Simulation.EdgeFluctuation,
		MinEdgePower:          s.Simulation.MinEdgePower,
		StatusFlipProbability: s.Simulation.StatusFlipProbability,
	}
}

// KernelOptions assembles the kernel configuration. Call after Validate.
func (s *Settings) KernelOptions() kernel.Options {
	mode, _ := topology.ParseWeightMode(s.Grid.WeightMode)
	return kernel.Options{
		Capacity:   s.Kernel.Capacity,
		Cluster:    s.ClusterOptions(),
		Simulation: s.SimulationOptions(),
		WeightMode: mode,
		Seed:       s.Simulation.Seed,
	}
}

// Backend parses the kernel backend. Call after Validate.
func (s *Settings) Backend() kernel.Backend {
	b, _ := kernel.ParseBackend(s.Kernel.Backend)
	return b
}

// ClusterMode maps the kernel backend onto the clustering dispatcher
func (s *Settings) ClusterMode() cluster.Mode {
	m, _ := cluster.ParseMode(s.Kernel.Backend)
	return m
}
