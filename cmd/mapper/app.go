package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/calib"
	"projection-mapper/internal/camera"
	"projection-mapper/internal/compute"
	"projection-mapper/internal/config"
	"projection-mapper/internal/output"
	"projection-mapper/internal/peer"
	"projection-mapper/internal/pool"
	"projection-mapper/internal/project"
	"projection-mapper/internal/scene"
	"projection-mapper/internal/store"
	"projection-mapper/internal/texture"
	"projection-mapper/internal/watch"
)

type appOptions struct {
	project   string
	calibrate bool
	watch     bool
	frames    uint64
	interval  time.Duration
}

// app holds what outlives a scene: the workers, the journal and the peer
// link. The scene itself is rebuilt on every project change.
type app struct {
	cfg  config.Config
	opts appOptions
	log  *slog.Logger

	workers *pool.Pool
	device  *compute.CPU
	journal *store.Store
	link    scene.Link
	hub     *peer.Hub
	client  *peer.Client
	server  *http.Server

	current atomic.Pointer[scene.Scene]
}

// run wires the app and loops over scene sessions until ctx is done.
func run(ctx context.Context, cfg config.Config, opts appOptions, log *slog.Logger) error {
	a := &app{
		cfg:     cfg,
		opts:    opts,
		log:     log,
		workers: pool.New(cfg.Workers),
		device:  compute.NewCPU(cfg.Workers),
	}
	defer a.close()

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return err
	}
	if cfg.Store != "" {
		st, err := store.Open(cfg.Store, log)
		if err != nil {
			return err
		}
		a.journal = st
	}
	if err := a.connect(ctx); err != nil {
		return err
	}
	log.Info("mapper ready", "project", opts.project, "master", cfg.Master(),
		"blending", cfg.Blending.Mode, "path", cfg.Blending.Path, "workers", cfg.Workers, "output", cfg.OutputDir)
	return a.loop(ctx)
}

// connect sets up the replication link: a hub when serving, a client when
// following a master.
func (a *app) connect(ctx context.Context) error {
	receive := func(m peer.Message) {
		sc := a.current.Load()
		if sc == nil {
			return
		}
		if err := sc.Receive(m); err != nil {
			a.log.Warn("peer message rejected", "type", m.Type, "target", m.Target, "err", err)
		}
	}

	switch {
	case a.cfg.Network.Listen != "":
		a.hub = peer.NewHub(a.log)
		a.hub.OnMessage(receive)
		a.link = a.hub

		mux := http.NewServeMux()
		mux.Handle("/peer", a.hub)
		mux.HandleFunc("/status", a.status)
		a.server = &http.Server{Addr: a.cfg.Network.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("peer hub stopped", "err", err)
			}
		}()
		a.log.Info("peer hub listening", "addr", a.cfg.Network.Listen)
	case a.cfg.Network.Peer != "":
		c, err := peer.Dial(ctx, a.cfg.Network.Peer, a.log)
		if err != nil {
			return err
		}
		c.OnMessage(receive)
		a.client = c
		a.link = c
	}
	return nil
}

func (a *app) status(w http.ResponseWriter, _ *http.Request) {
	st := struct {
		Frames  uint64 `json:"frames"`
		Clients int    `json:"clients"`
		Sent    int64  `json:"sent"`
		Dropped int64  `json:"dropped"`
	}{}
	if sc := a.current.Load(); sc != nil {
		st.Frames = sc.Frames()
	}
	st.Clients = a.hub.Clients()
	st.Sent, st.Dropped = a.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.server.Shutdown(ctx)
		cancel()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	a.workers.Close()
}

// loop runs sessions, rebuilding the scene whenever the watched project
// changes. Only the first session calibrates.
func (a *app) loop(ctx context.Context) error {
	calibrate := a.opts.calibrate
	for {
		reload, err := a.session(ctx, calibrate)
		calibrate = false
		if err != nil {
			if !a.opts.watch || ctx.Err() != nil {
				return err
			}
			a.log.Error("session failed, waiting for the project to change", "err", err)
			reload = a.waitChange(ctx)
		}
		if !reload || ctx.Err() != nil {
			return nil
		}
		a.log.Info("project changed, rebuilding the scene")
	}
}

func (a *app) waitChange(ctx context.Context) bool {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	changed := false
	err := watch.Watch(wctx, a.opts.project, 0, func(context.Context) error {
		changed = true
		cancel()
		return nil
	}, a.log)
	if err != nil {
		a.log.Error("cannot watch the project", "err", err)
	}
	return changed
}

// session builds a scene from the project and runs it until ctx is done,
// the frame budget is spent or the project changes.
func (a *app) session(ctx context.Context, calibrate bool) (reload bool, err error) {
	p, err := project.Load(a.opts.project)
	if err != nil {
		return false, err
	}
	sc, err := a.build(ctx, p)
	if err != nil {
		return false, err
	}
	defer sc.Close()
	a.current.Store(sc)

	if calibrate {
		if err := a.calibrate(ctx, sc, p); err != nil {
			return false, err
		}
	}
	if ss := a.cfg.Supersample; ss > 1 {
		for _, c := range sc.Cameras() {
			w, h := c.Size()
			c.SetSize(w*ss, h*ss)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var changed atomic.Bool
	if a.opts.watch {
		go watch.Watch(runCtx, a.opts.project, 0, func(context.Context) error {
			changed.Store(true)
			cancel()
			return nil
		}, a.log)
	}

	mode, _ := scene.ParseMode(a.cfg.Blending.Mode)
	if err := sc.ActivateBlendingMap(runCtx, mode); err != nil {
		a.log.Warn("blending not activated", "err", err)
	}
	err = sc.Run(runCtx, a.opts.interval, a.sink(sc, p, cancel))
	return changed.Load(), err
}

// build creates the scene described by p.
func (a *app) build(ctx context.Context, p *project.File) (*scene.Scene, error) {
	path, _ := scene.ParsePath(a.cfg.Blending.Path)
	opts := scene.Options{
		Master:      a.cfg.Master(),
		Path:        path,
		PeerTimeout: a.cfg.PeerTimeout(),
		MapWidth:    a.cfg.MapWidth,
		MapHeight:   a.cfg.MapHeight,
		Device:      a.device,
		Camera: camera.Options{
			Solver:                calib.NewSolver(a.cfg.Calibration, a.workers, a.log),
			TessellationLevels:    a.cfg.Blending.TessellationLevels,
			LegacyTransposedMerge: a.cfg.Blending.LegacyTransposedMerge,
		},
		Log: a.log,
	}
	if a.link != nil {
		opts.Link = a.link
	}
	if a.journal != nil {
		opts.Camera.Journal = a.journal
	}
	sc := scene.New(opts)

	texDir := filepath.Dir(a.opts.project)
	if p.Textures != "" {
		texDir = project.Resolve(a.opts.project, p.Textures)
	}
	index := texture.BuildIndex(texDir)
	a.log.Info("textures indexed", "dir", texDir, "count", index.Len())

	err := project.Build(p, sc, project.Deps{
		Path:           a.opts.project,
		Textures:       texture.NewCache(index, a.log),
		FrontOnly:      a.cfg.Blending.Sideness,
		BlendWidth:     a.cfg.Blending.Width,
		BlendPrecision: a.cfg.Blending.Precision,
		Log:            a.log,
	})
	if err != nil {
		return nil, err
	}
	if a.journal != nil {
		if err := a.restorePoints(ctx, sc); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// restorePoints gives cameras without calibration points the ones last
// saved in the journal.
func (a *app) restorePoints(ctx context.Context, sc *scene.Scene) error {
	for _, c := range sc.Cameras() {
		if len(c.CalibrationPoints()) > 0 {
			continue
		}
		points, err := a.journal.LoadPoints(ctx, c.Name())
		if err != nil {
			return err
		}
		if len(points) > 0 {
			c.SetCalibrationPoints(points)
			a.log.Info("calibration points restored", "camera", c.Name(), "points", len(points))
		}
	}
	return nil
}

func setCount(points [][6]float64) int {
	n := 0
	for _, p := range points {
		if p[5] != 0 {
			n++
		}
	}
	return n
}

// calibrate runs the calibration of every local camera with enough set
// points, shares the accepted ones and saves the project.
func (a *app) calibrate(ctx context.Context, sc *scene.Scene, p *project.File) error {
	var todo []*camera.Camera
	for _, c := range sc.Cameras() {
		if n := setCount(c.CalibrationPoints()); n >= calib.MinPoints {
			todo = append(todo, c)
		} else {
			a.log.Warn("camera skipped, not enough calibration points", "camera", c.Name(), "set", n)
		}
	}
	if len(todo) == 0 {
		return nil
	}

	progress, stop := context.WithCancel(ctx)
	defer stop()
	a.workers.ReportProgress(progress, "calibration trials", int64(len(todo)*a.cfg.Calibration.Trials), 2*time.Second, a.log)

	accepted := 0
	for _, c := range todo {
		if a.journal != nil {
			if prev, err := a.journal.History(ctx, c.Name(), 1); err == nil && len(prev) > 0 {
				a.log.Info("previous calibration", "camera", c.Name(), "residual", prev[0].Residual, "at", prev[0].Created)
			}
		}
		if !c.DoCalibration() {
			continue
		}
		accepted++
		if err := sc.ShareCalibration(ctx, c.Name()); err != nil {
			a.log.Warn("calibration not shared", "camera", c.Name(), "err", err)
		}
	}
	a.log.Info("calibration finished", "cameras", len(todo), "accepted", accepted)
	if accepted == 0 {
		return nil
	}
	project.Capture(p, sc)
	return p.Save(a.opts.project)
}

// sink writes the previews of each frame, the blending map when it
// changes and the manifest. It cancels the session once the frame budget
// is spent.
func (a *app) sink(sc *scene.Scene, p *project.File, done context.CancelFunc) func(scene.Frame) error {
	prev := output.Preview{Supersample: a.cfg.Supersample, MaxEdge: a.cfg.PreviewSize}
	var lastMap *blendmap.Map
	mapFile := ""

	return func(f scene.Frame) error {
		names := make([]string, 0, len(f.Images))
		for name := range f.Images {
			names = append(names, name)
		}
		slices.Sort(names)

		entries := make([]output.ManifestEntry, len(names))
		g := new(errgroup.Group)
		for i, name := range names {
			rel := name + ".webp"
			g.Go(func() error {
				size, err := output.WritePreview(filepath.Join(a.cfg.OutputDir, rel), f.Images[name], prev)
				if err != nil {
					return err
				}
				entries[i] = output.ManifestEntry{Camera: name, Frame: f.Index, Image: rel, Width: size.X, Height: size.Y}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if m := sc.BlendingMap(); m != lastMap {
			lastMap, mapFile = m, ""
			if m != nil {
				if err := output.WriteBlendingMap(filepath.Join(a.cfg.OutputDir, "blending.tiff"), m); err != nil {
					return err
				}
				mapFile = "blending.tiff"
			}
		}

		err := output.WriteManifest(filepath.Join(a.cfg.OutputDir, "manifest.json"), output.Manifest{
			Project:     p.Name,
			Written:     time.Now(),
			BlendingMap: mapFile,
			Images:      entries,
		})
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		a.log.Debug("frame written", "frame", f.Index, "images", len(entries))
		if a.opts.frames > 0 && f.Index >= a.opts.frames {
			done()
		}
		return nil
	}
}
