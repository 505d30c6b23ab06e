package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/config"
	"projection-mapper/internal/output"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const setup = `
name: demo
objects:
  - name: wall
    primitive: plane
    size: 2
    fill: primitive
cameras:
  - name: left
    size: [32, 24]
    eye: [0.5, 0, 4]
    up: [0, 1, 0]
    objects: [wall]
  - name: right
    size: [32, 24]
    eye: [-0.5, 0, 4]
    up: [0, 1, 0]
    objects: [wall]
`

func TestRunWritesFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(setup), 0644))

	var cfg config.Config
	cfg.Resolve(config.Flags{OutputDir: filepath.Join(dir, "out"), Workers: 2, Blend: "once", Store: filepath.Join(dir, "journal.db")})
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, cfg, appOptions{project: path, frames: 2, interval: 5 * time.Millisecond}, quiet))

	data, err := os.ReadFile(filepath.Join(dir, "out", "manifest.json"))
	require.NoError(t, err)
	var m output.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "demo", m.Project)
	require.Len(t, m.Images, 2)
	assert.Equal(t, "left", m.Images[0].Camera)
	assert.Equal(t, "right", m.Images[1].Camera)
	assert.GreaterOrEqual(t, m.Images[0].Frame, uint64(2))
	assert.Equal(t, 32, m.Images[0].Width, "supersampled render scaled back")
	assert.Equal(t, 24, m.Images[0].Height)
	assert.FileExists(t, filepath.Join(dir, "out", "left.webp"))
	assert.FileExists(t, filepath.Join(dir, "out", "right.webp"))
}

func TestSetCount(t *testing.T) {
	assert.Equal(t, 2, setCount([][6]float64{{0, 0, 0, 0, 0, 1}, {1, 0, 0, 0, 0, 0}, {2, 0, 0, 0, 0, 1}}))
	assert.Zero(t, setCount(nil))
}

func TestRunMissingProject(t *testing.T) {
	var cfg config.Config
	cfg.Resolve(config.Flags{OutputDir: t.TempDir()})
	err := run(context.Background(), cfg, appOptions{project: filepath.Join(t.TempDir(), "none.yaml"), interval: time.Millisecond}, quiet)
	assert.ErrorContains(t, err, "project: read")
}
