package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/calib"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"engine.json", `{"map_width": 1024, "calibration": {"trials": 2, "method": "gonum"},
			"blending": {"mode": "once", "peer_timeout": 2.5}, "network": {"peer": "ws://master/peer"}}`},
		{"engine.toml", `
map_width = 1024

[calibration]
trials = 2
method = "gonum"

[blending]
mode = "once"
peer_timeout = 2.5

[network]
peer = "ws://master/peer"
`},
		{"engine.yaml", `
map_width: 1024
calibration:
  trials: 2
  method: gonum
blending:
  mode: once
  peer_timeout: 2.5
network:
  peer: ws://master/peer
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(write(t, tt.name, tt.body))
			require.NoError(t, err)
			assert.Equal(t, 1024, cfg.MapWidth)
			assert.Zero(t, cfg.MapHeight)
			assert.Equal(t, 2, cfg.Calibration.Trials)
			assert.Equal(t, calib.MethodGonum, cfg.Calibration.Method)
			assert.Equal(t, "once", cfg.Blending.Mode)
			assert.False(t, cfg.Master())
			assert.Equal(t, 2500*time.Millisecond, cfg.PeerTimeout())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "config: read")
	_, err = Load(write(t, "engine.ini", "x=1"))
	assert.ErrorContains(t, err, "unknown format")
	_, err = Load(write(t, "engine.json", "{"))
	assert.ErrorContains(t, err, "config: parse")
}

func TestResolveDefaults(t *testing.T) {
	var cfg Config
	cfg.Resolve(Flags{})
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.MapWidth)
	assert.Equal(t, 512, cfg.MapHeight)
	assert.Equal(t, 2, cfg.Supersample)
	assert.Zero(t, cfg.PreviewSize)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, calib.DefaultOptions(), cfg.Calibration)
	assert.Equal(t, Blending{
		Mode: "off", Path: "compute", Width: 0.05, Precision: 0.1,
		TessellationLevels: 3, PeerTimeout: 10,
	}, cfg.Blending)
	assert.True(t, cfg.Master())
	assert.Equal(t, 10*time.Second, cfg.PeerTimeout())
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestResolveFlagsWin(t *testing.T) {
	cfg := Config{PreviewSize: 50, Blending: Blending{Mode: "once"}}
	cfg.Resolve(Flags{Preview: 75, Blend: "continuous", Path: "map", Workers: 3, LogLevel: "debug"})
	assert.Equal(t, 75, cfg.PreviewSize)
	assert.Equal(t, "continuous", cfg.Blending.Mode)
	assert.Equal(t, "map", cfg.Blending.Path)
	assert.Equal(t, 3, cfg.Workers)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"small map", func(c *Config) { c.MapWidth = 32 }},
		{"preview", func(c *Config) { c.PreviewSize = -1 }},
		{"supersample", func(c *Config) { c.Supersample = 8 }},
		{"mode", func(c *Config) { c.Blending.Mode = "sometimes" }},
		{"path", func(c *Config) { c.Blending.Path = "gpu" }},
		{"method", func(c *Config) { c.Calibration.Method = "lbfgs" }},
		{"both roles", func(c *Config) { c.Network = Network{Listen: ":8080", Peer: "ws://x"} }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.Resolve(Flags{})
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
