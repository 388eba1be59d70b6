package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/cluster"
	"gridkernel/core"
	"gridkernel/kernel"
	"gridkernel/topology"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridkernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.Equal(t, 60.0, s.Cluster.Radius)
	assert.Equal(t, 16, s.Cluster.MaxZoom)
	assert.Equal(t, 32768, s.Kernel.Capacity)
	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, 0.005, s.Simulation.StatusFlipProbability)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
cluster:
  radius: 40
  max_zoom: 12
simulation:
  seed: 99
kernel:
  backend: host
  strict: true
server:
  port: 9090
grid:
  weight_mode: distance
  topology_file: grid.yaml
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40.0, s.Cluster.Radius)
	assert.Equal(t, 12, s.Cluster.MaxZoom)
	assert.Equal(t, 512.0, s.Cluster.Extent, "unset keys keep defaults")
	assert.Equal(t, uint64(99), s.Simulation.Seed)
	assert.True(t, s.Kernel.Strict)
	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, "grid.yaml", s.Grid.TopologyFile)

	assert.Equal(t, kernel.BackendHost, s.Backend())
	assert.Equal(t, cluster.ModeHost, s.ClusterMode())
	opts := s.KernelOptions()
	assert.Equal(t, topology.WeightDistance, opts.WeightMode)
	assert.Equal(t, uint64(99), opts.Seed)
	assert.Equal(t, 12, opts.Cluster.MaxZoom)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zoom too deep", "cluster:\n  max_zoom: 30\n"},
		{"zero radius", "cluster:\n  radius: 0\n"},
		{"flip probability", "simulation:\n  status_flip_probability: 2\n"},
		{"backend", "kernel:\n  backend: gpu\n"},
		{"capacity", "kernel:\n  capacity: 0\n"},
		{"weight mode", "grid:\n  weight_mode: hops\n"},
		{"log format", "logging:\n  format: xml\n"},
		{"interval", "server:\n  update_interval_ms: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}

	_, err := Load(writeFile(t, "cluster: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("values apply over the file", func(t *testing.T) {
		t.Setenv("GRIDKERNEL_PORT", "7000")
		t.Setenv("GRIDKERNEL_LOG_LEVEL", "DEBUG")
		t.Setenv("GRIDKERNEL_STRICT", "true")
		t.Setenv("GRIDKERNEL_SEED", "42")

		s, err := Load(writeFile(t, "server:\n  port: 9090\n"))
		require.NoError(t, err)
		assert.Equal(t, 7000, s.Server.Port)
		assert.Equal(t, "debug", s.Logging.Level)
		assert.True(t, s.Kernel.Strict)
		assert.Equal(t, uint64(42), s.Simulation.Seed)
	})

	t.Run("malformed values are rejected", func(t *testing.T) {
		for key, value := range map[string]string{
			"GRIDKERNEL_PORT":   "eighty",
			"GRIDKERNEL_STRICT": "maybe",
			"GRIDKERNEL_SEED":   "-1",
		} {
			t.Run(key, func(t *testing.T) {
				t.Setenv(key, value)
				s := Default()
				assert.ErrorIs(t, s.applyEnvOverrides(), core.ErrInvalidInput)
			})
		}
	})
}
