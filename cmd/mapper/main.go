package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"projection-mapper/internal/config"
)

func main() {
	// CLI flags
	configFile := flag.String("config", "", "Path to config file (.json, .toml, .yaml)")
	projectFile := flag.String("project", "", "Path to the project file (.yaml or .json)")
	calibrate := flag.Bool("calibrate", false, "Calibrate every camera with enough points, then save the project")
	blend := flag.String("blend", "", "Blending mode: once, continuous or off (default: off)")
	path := flag.String("path", "", "Blending path: compute or map (default: compute)")
	outputDir := flag.String("out", "", "Output directory (default: out)")
	storePath := flag.String("store", "", "SQLite calibration journal (default: none)")
	watchProject := flag.Bool("watch", false, "Rebuild the scene when the project file changes")
	serve := flag.String("serve", "", "Serve the peer hub on this address (master)")
	peerURL := flag.String("peer", "", "WebSocket URL of the master hub (follower)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (default: info)")
	frames := flag.Int("frames", 0, "Stop after N frames (default: run until interrupted)")
	interval := flag.Duration("interval", 40*time.Millisecond, "Time between frames")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	preview := flag.Int("preview", 0, "Longest edge of the written previews (default: camera size)")

	flag.Parse()

	if *projectFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -project is required.")
		os.Exit(2)
	}

	// Load config
	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		OutputDir: *outputDir,
		Store:     *storePath,
		Workers:   *workers,
		Preview:   *preview,
		Blend:     *blend,
		Path:      *path,
		Listen:    *serve,
		Peer:      *peerURL,
		LogLevel:  *logLevel,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err := run(ctx, cfg, appOptions{
		project:   *projectFile,
		calibrate: *calibrate,
		watch:     *watchProject,
		frames:    uint64(max(*frames, 0)),
		interval:  *interval,
	}, log)
	if err != nil {
		log.Error("stopped", "err", err)
		stop()
		os.Exit(1)
	}
	log.Info("done", "took", time.Since(start).Round(time.Millisecond))
}
