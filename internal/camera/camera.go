// Package camera is a virtual projector: a pinhole camera with a lens
// shift, the calibration points that tie it to the physical projector and
// the entry points of the blending computations.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"

	"projection-mapper/internal/attribute"
	"projection-mapper/internal/calib"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/object"
	"projection-mapper/internal/projection"
	"projection-mapper/internal/raster"
)

// ErrUnknownObject is returned when linking a name the resolver ignores.
var ErrUnknownObject = errors.New("camera: unknown object")

const (
	DefaultFov            = 35.0
	DefaultSize           = 256
	DefaultNear           = 0.1
	DefaultFar            = 100.0
	DefaultBlendWidth     = 0.05
	DefaultBlendPrecision = 0.1

	// frameWidth is the border drawn around the image, in pixels.
	frameWidth = 8
)

// Resolver finds objects by name, usually the scene owning them.
type Resolver interface {
	Object(name string) (*object.Object, bool)
}

// Journal records accepted calibrations.
type Journal interface {
	RecordCalibration(ctx context.Context, camera string, res calib.Result, points [][6]float64) error
}

// Options are the collaborators of a camera. Zero values are usable: no
// solver means calibration uses default options, no resolver means nothing
// can be linked.
type Options struct {
	Solver                *calib.Solver
	Resolver              Resolver
	Journal               Journal
	Log                   *slog.Logger
	TessellationLevels    int
	LegacyTransposedMerge bool
}

// Camera is safe for concurrent use.
type Camera struct {
	mu sync.Mutex

	name  string
	opts  Options
	log   *slog.Logger
	attrs *attribute.Registry

	eye, target, up mathutil.Vec3
	fov             float64
	cx, cy          float64
	width, height   int
	near, far       float64

	blendWidth     float64
	blendPrecision float64
	brightness     float64
	weighted       bool
	sixteenBits    bool
	frame          bool
	hidden         bool
	showPoints     bool

	points         *calib.Store
	calibratedOnce bool
	links          []string

	last    *raster.FrameBuffer
	lastVP  viewProj
	version uint64
}

type viewProj struct {
	view, proj mathutil.Mat4
}

// New returns a camera with default parameters looking at the origin from
// (1, 0, 5).
func New(name string, opts Options) *Camera {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.Solver == nil {
		opts.Solver = calib.NewSolver(calib.Options{}, nil, log)
	}
	c := &Camera{
		name:           name,
		opts:           opts,
		log:            log.With("camera", name),
		attrs:          attribute.NewRegistry(),
		eye:            mathutil.Vec3{1, 0, 5},
		up:             mathutil.Vec3{0, 0, 1},
		fov:            DefaultFov,
		cx:             0.5,
		cy:             0.5,
		width:          DefaultSize,
		height:         DefaultSize,
		near:           DefaultNear,
		far:            DefaultFar,
		blendWidth:     DefaultBlendWidth,
		blendPrecision: DefaultBlendPrecision,
		brightness:     1,
		weighted:       true,
		points:         calib.NewStore(),
	}
	c.registerAttributes()
	return c
}

func (c *Camera) Name() string { return c.name }

// Version is bumped every time a calibration changes the parameters.
func (c *Camera) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Size returns the output size in pixels.
func (c *Camera) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// SetSize changes the output size. Non-positive sizes are ignored.
func (c *Camera) SetSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	c.mu.Lock()
	c.width, c.height = w, h
	c.mu.Unlock()
}

// Pose returns eye, target and up.
func (c *Camera) Pose() (eye, target, up mathutil.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eye, c.target, c.up
}

// SetPose places the camera.
func (c *Camera) SetPose(eye, target, up mathutil.Vec3) {
	c.mu.Lock()
	c.eye, c.target, c.up = eye, target, up
	c.mu.Unlock()
}

// Intrinsics returns the vertical field of view in degrees and the
// principal point.
func (c *Camera) Intrinsics() (fov, cx, cy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov, c.cx, c.cy
}

func (c *Camera) SetFov(fov float64) {
	c.mu.Lock()
	c.fov = fov
	c.mu.Unlock()
}

func (c *Camera) SetPrincipalPoint(cx, cy float64) {
	c.mu.Lock()
	c.cx, c.cy = cx, cy
	c.mu.Unlock()
}

// Blending returns the blend width and tessellation precision.
func (c *Camera) Blending() (width, precision float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blendWidth, c.blendPrecision
}

func (c *Camera) SetBlending(width, precision float64) {
	c.mu.Lock()
	c.blendWidth, c.blendPrecision = width, precision
	c.mu.Unlock()
}

// ViewMatrix returns the look-at matrix of the current pose.
func (c *Camera) ViewMatrix() mathutil.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix()
}

// ProjectionMatrix returns the lens-shifted frustum.
func (c *Camera) ProjectionMatrix() mathutil.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix()
}

func (c *Camera) viewMatrix() mathutil.Mat4 {
	return projection.ViewMatrix(c.eye, c.target, c.up)
}

func (c *Camera) projectionMatrix() mathutil.Mat4 {
	return projection.ProjectionMatrix(c.fov, c.cx, c.cy, c.near, c.far, c.width, c.height)
}

// objectView is the state linked objects need to be drawn.
func (c *Camera) objectView() object.View {
	return object.View{
		View:       c.viewMatrix(),
		Projection: c.projectionMatrix(),
		BlendWidth: c.blendWidth,
		Brightness: c.brightness,
	}
}

// Link attaches an object, resolved by name, and mirrors the calibration
// points on it.
func (c *Camera) Link(name string) error {
	if c.opts.Resolver == nil {
		return fmt.Errorf("%w: %s", ErrUnknownObject, name)
	}
	obj, ok := c.opts.Resolver.Object(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.links, name) {
		c.links = append(c.links, name)
	}
	for _, p := range c.points.Points() {
		obj.AddCalibrationPoint(p.World)
	}
	return nil
}

// Unlink detaches an object. Unknown names are ignored.
func (c *Camera) Unlink(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = slices.DeleteFunc(c.links, func(n string) bool { return n == name })
}

// Links returns the names of the linked objects.
func (c *Camera) Links() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.links)
}

// objects resolves the linked objects, skipping those that left the scene.
// Callers hold mu.
func (c *Camera) objects() []*object.Object {
	if c.opts.Resolver == nil {
		return nil
	}
	out := make([]*object.Object, 0, len(c.links))
	for _, name := range c.links {
		if obj, ok := c.opts.Resolver.Object(name); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Objects returns the linked objects still present in the scene.
func (c *Camera) Objects() []*object.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects()
}

var (
	frameColor          = [4]float64{1, 0.5, 0, 1}
	markerAddedColor    = [4]float64{1, 1, 1, 1}
	markerSetColor      = [4]float64{0, 1, 0, 1}
	markerSelectedColor = [4]float64{1, 0, 0, 1}
	screenMarkerColor   = [4]float64{0, 0.5, 1, 1}
)

// Render draws the linked objects, then the frame and the calibration
// markers when enabled. The result is kept for picking.
func (c *Camera) Render() *raster.FrameBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	fb := c.render(func(o *object.Object, fb *raster.FrameBuffer, v object.View) { o.Draw(fb, v) })
	if c.frame {
		w, h := c.width, c.height
		fb.Overlay(0, 0, w, frameWidth, frameColor)
		fb.Overlay(0, h-frameWidth, w, h, frameColor)
		fb.Overlay(0, 0, frameWidth, h, frameColor)
		fb.Overlay(w-frameWidth, 0, w, h, frameColor)
	}
	if c.showPoints {
		c.drawMarkers(fb)
	}
	return fb
}

// render draws every linked object with draw into a fresh buffer and keeps
// it with the matrices used. Callers hold mu.
func (c *Camera) render(draw func(*object.Object, *raster.FrameBuffer, object.View)) *raster.FrameBuffer {
	fb := raster.NewFrameBuffer(c.width, c.height)
	v := c.objectView()
	if !c.hidden {
		for _, o := range c.objects() {
			draw(o, fb, v)
		}
	}
	c.last = fb
	c.lastVP = viewProj{view: v.View, proj: v.Projection}
	return fb
}

func (c *Camera) drawMarkers(fb *raster.FrameBuffer) {
	mvp := mathutil.Mat4Mul(c.projectionMatrix(), c.viewMatrix())
	sel := c.points.Selected()
	for i, p := range c.points.Points() {
		color := markerAddedColor
		switch {
		case i == sel:
			color = markerSelectedColor
		case p.IsSet:
			color = markerSetColor
		}
		if ndc, front := projection.ToNormalized(p.World, mvp); front {
			x, y := projection.NormalizedToPixel(mathutil.Vec2{ndc[0], ndc[1]}, c.width, c.height)
			marker(fb, x, y, 3, color)
		}
		if p.IsSet && i == sel {
			x, y := projection.NormalizedToPixel(p.Screen, c.width, c.height)
			marker(fb, x, y, 2, screenMarkerColor)
		}
	}
}

func marker(fb *raster.FrameBuffer, x, y float64, r int, color [4]float64) {
	px, py := int(x), int(y)
	fb.Overlay(px-r, py-r, px+r+1, py+r+1, color)
}

// Image renders the camera and returns the picture, 16 bits per channel
// when the 16bits attribute is on.
func (c *Camera) Image() image.Image {
	fb := c.Render()
	c.mu.Lock()
	deep := c.sixteenBits
	c.mu.Unlock()
	if deep {
		return fb.NRGBA64()
	}
	return fb.NRGBA()
}
