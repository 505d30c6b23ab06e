// Package scene owns the objects and cameras of a mapping setup, drives
// the blending computations frame after frame and replicates their results
// to the other processes sharing the setup.
package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"projection-mapper/internal/attribute"
	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/camera"
	"projection-mapper/internal/compute"
	"projection-mapper/internal/fence"
	"projection-mapper/internal/geometry"
	"projection-mapper/internal/object"
)

var (
	ErrExists      = errors.New("scene: name already used")
	ErrNotFound    = errors.New("scene: not found")
	ErrPeerTimeout = errors.New("scene: timed out waiting for the master blending")
)

const (
	DefaultPeerTimeout = 10 * time.Second
	DefaultMapSize     = 512

	// pollInterval paces the wait for the master notification.
	pollInterval = time.Second
	// resendDelay separates the two sends of the blending map.
	resendDelay = 100 * time.Millisecond
	// minMapSize is the smallest accepted blending resolution.
	minMapSize = 64
)

// Link carries replication messages to the other processes.
type Link interface {
	Send(ctx context.Context, typ, target string, payload []byte) error
}

// Options configure a scene. Zero values get the defaults.
type Options struct {
	// Master computes the blending; the others wait for its results.
	Master      bool
	Link        Link
	Path        Path
	PeerTimeout time.Duration
	MapWidth    int
	MapHeight   int
	Device      compute.Device
	// Camera is the template of every camera added to the scene. Its
	// Resolver and Log are replaced by the scene.
	Camera camera.Options
	Log    *slog.Logger
}

// Scene is safe for concurrent use. Structural changes are guarded by one
// lock; the blending state is owned by whoever runs the frames.
type Scene struct {
	mu      sync.RWMutex
	objects map[string]*object.Object
	cameras map[string]*camera.Camera
	ghosts  map[string]*camera.Camera
	nextID  uint32

	opts  Options
	log   *slog.Logger
	attrs *attribute.Registry

	state                   sync.Mutex
	blendingActive          bool
	computeBlending         bool
	computeOnce             bool
	computedOnce            bool
	computedInPreviousFrame bool

	mapMu sync.Mutex
	bmap  *blendmap.Map

	updated chan struct{}

	fence  *fence.Fence
	frames atomic.Uint64
	last   Frame
}

// New returns an empty scene.
func New(opts Options) *Scene {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Path == "" {
		opts.Path = PathCompute
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = DefaultPeerTimeout
	}
	if opts.MapWidth <= 0 {
		opts.MapWidth = DefaultMapSize
	}
	if opts.MapHeight <= 0 {
		opts.MapHeight = DefaultMapSize
	}
	if opts.Device == nil {
		opts.Device = compute.NewCPU(0)
	}
	s := &Scene{
		objects: make(map[string]*object.Object),
		cameras: make(map[string]*camera.Camera),
		ghosts:  make(map[string]*camera.Camera),
		opts:    opts,
		log:     opts.Log.With("component", "scene"),
		attrs:   attribute.NewRegistry(),
		updated: make(chan struct{}, 1),
		fence:   fence.New(),
	}
	s.registerAttributes()
	return s
}

func (s *Scene) Master() bool { return s.opts.Master }

func (s *Scene) used(name string) bool {
	_, o := s.objects[name]
	_, c := s.cameras[name]
	_, g := s.ghosts[name]
	return o || c || g
}

// AddObject creates an object drawing m.
func (s *Scene) AddObject(name string, m *geometry.Mesh) (*object.Object, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("scene: object %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used(name) {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	s.nextID++
	o := object.New(name, s.nextID, geometry.New(m), s.opts.Device, s.opts.Log)
	s.objects[name] = o
	return o, nil
}

func (s *Scene) newCamera(name string, ghost bool) (*camera.Camera, error) {
	opts := s.opts.Camera
	opts.Resolver = s
	opts.Log = s.opts.Log
	if ghost {
		opts.Journal = nil
	}
	c := camera.New(name, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used(name) {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if ghost {
		s.ghosts[name] = c
	} else {
		s.cameras[name] = c
	}
	return c, nil
}

// AddCamera creates a camera rendered by this process.
func (s *Scene) AddCamera(name string) (*camera.Camera, error) {
	return s.newCamera(name, false)
}

// AddGhost creates a camera mirrored from another process. Ghosts take part
// in the blending computations but are not rendered here.
func (s *Scene) AddGhost(name string) (*camera.Camera, error) {
	return s.newCamera(name, true)
}

// Remove deletes an object, camera or ghost. Cameras linked to a removed
// object skip it from then on.
func (s *Scene) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.used(name) {
		return false
	}
	delete(s.objects, name)
	delete(s.cameras, name)
	delete(s.ghosts, name)
	return true
}

// Object implements camera.Resolver.
func (s *Scene) Object(name string) (*object.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	return o, ok
}

// Camera returns a local camera or a ghost.
func (s *Scene) Camera(name string) (*camera.Camera, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cameras[name]; ok {
		return c, true
	}
	c, ok := s.ghosts[name]
	return c, ok
}

func sorted[V any](m map[string]V) []V {
	out := make([]V, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	return out
}

// Objects returns the objects sorted by name.
func (s *Scene) Objects() []*object.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.objects)
}

// Cameras returns the local cameras sorted by name.
func (s *Scene) Cameras() []*camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.cameras)
}

// Ghosts returns the ghost cameras sorted by name.
func (s *Scene) Ghosts() []*camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.ghosts)
}

// allCameras returns the local cameras followed by the ghosts.
func (s *Scene) allCameras() []*camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(sorted(s.cameras), sorted(s.ghosts)...)
}

// Link attaches an object to a camera or ghost.
func (s *Scene) Link(cameraName, objectName string) error {
	c, ok := s.Camera(cameraName)
	if !ok {
		return fmt.Errorf("%w: camera %s", ErrNotFound, cameraName)
	}
	return c.Link(objectName)
}

// Unlink detaches an object from a camera or ghost.
func (s *Scene) Unlink(cameraName, objectName string) error {
	c, ok := s.Camera(cameraName)
	if !ok {
		return fmt.Errorf("%w: camera %s", ErrNotFound, cameraName)
	}
	c.Unlink(objectName)
	return nil
}

// BlendingMap returns the last composed blending map, nil before any.
func (s *Scene) BlendingMap() *blendmap.Map {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	return s.bmap
}

func (s *Scene) setBlendingMap(m *blendmap.Map) {
	s.mapMu.Lock()
	s.bmap = m
	s.mapMu.Unlock()
	for _, o := range s.Objects() {
		o.SetBlendingMap(m)
	}
}

// Attributes returns the named parameters and actions of the scene.
func (s *Scene) Attributes() *attribute.Registry { return s.attrs }

func (s *Scene) registerAttributes() {
	s.attrs.Add("computeBlending", attribute.Spec{
		Signature: attribute.Signature{attribute.Text},
		Set: func(vs attribute.Values) error {
			mode, err := ParseMode(vs[0].Text())
			if err != nil {
				return err
			}
			return s.ActivateBlendingMap(context.Background(), mode)
		},
		Description: "Ask for blending computation: once, continuous or off",
	})
	s.attrs.Add("blendingResolution", attribute.Spec{
		Signature: attribute.Numbers(1),
		Set: func(vs attribute.Values) error {
			n := int(vs[0].Float())
			if n < minMapSize {
				return fmt.Errorf("scene: blending resolution %d below %d", n, minMapSize)
			}
			s.state.Lock()
			s.opts.MapWidth, s.opts.MapHeight = n, n
			s.state.Unlock()
			return nil
		},
		Get: func() attribute.Values {
			s.state.Lock()
			defer s.state.Unlock()
			return attribute.Nums(float64(s.opts.MapWidth))
		},
		Description: "Resolution of the blending map",
	})
	s.attrs.Add("blendingUpdated", attribute.Spec{
		Set: func(attribute.Values) error {
			s.BlendingUpdated()
			return nil
		},
		Description: "Notification from the master that a new blending was computed",
	})
}
