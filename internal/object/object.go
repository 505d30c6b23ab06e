// Package object is a 3-D object of the scene: a geometry placed by a model
// matrix, drawn with a fill mode, and carrying the per-vertex blending
// state computed for the cameras it is linked to.
package object

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"sync"

	"projection-mapper/internal/attribute"
	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/compute"
	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
	"projection-mapper/internal/raster"
)

// View is the camera state an object needs to be drawn.
type View struct {
	View       mathutil.Mat4
	Projection mathutil.Mat4
	BlendWidth float64
	Brightness float64
}

// Object is safe for concurrent use.
type Object struct {
	mu sync.Mutex

	name  string
	id    uint32
	geom  *geometry.Geometry
	dev   compute.Device
	log   *slog.Logger
	attrs *attribute.Registry

	position mathutil.Vec3
	rotation mathutil.Vec3 // degrees
	scale    mathutil.Vec3

	fill        raster.Fill
	color       [4]float64
	texture     *image.NRGBA
	textureName string

	sideness       compute.Sideness
	vertexBlending bool
	blendMap       *blendmap.Map
	points         []mathutil.Vec3
	disabled       map[compute.Phase]bool
}

// New returns an object drawing g. id tags its pixels in primitive-id
// renders and must be unique in a scene.
func New(name string, id uint32, g *geometry.Geometry, dev compute.Device, log *slog.Logger) *Object {
	if log == nil {
		log = slog.Default()
	}
	o := &Object{
		name:     name,
		id:       id,
		geom:     g,
		dev:      dev,
		log:      log.With("object", name),
		scale:    mathutil.Vec3{1, 1, 1},
		fill:     raster.FillTexture,
		disabled: make(map[compute.Phase]bool),
		attrs:    attribute.NewRegistry(),
	}
	o.registerAttributes()
	return o
}

func (o *Object) Name() string { return o.name }

func (o *Object) ID() uint32 { return o.id }

func (o *Object) Geometry() *geometry.Geometry { return o.geom }

// ModelMatrix returns translation · rotation (x, then y, then z) · scale.
func (o *Object) ModelMatrix() mathutil.Mat4 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model()
}

func (o *Object) model() mathutil.Mat4 {
	r := mathutil.Mat3Mul(mathutil.RotX(mathutil.Deg2Rad(o.rotation[0])),
		mathutil.Mat3Mul(mathutil.RotY(mathutil.Deg2Rad(o.rotation[1])), mathutil.RotZ(mathutil.Deg2Rad(o.rotation[2]))))
	var s mathutil.Mat4
	s[0], s[5], s[10], s[15] = o.scale[0], o.scale[1], o.scale[2], 1
	return mathutil.Mat4Mul(mathutil.Translation(o.position), mathutil.Mat4Mul(r.Mat4(), s))
}

func (o *Object) SetPosition(p mathutil.Vec3) {
	o.mu.Lock()
	o.position = p
	o.mu.Unlock()
}

func (o *Object) Position() mathutil.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position
}

// SetRotation sets the rotation around x, y and z in degrees.
func (o *Object) SetRotation(r mathutil.Vec3) {
	o.mu.Lock()
	o.rotation = r
	o.mu.Unlock()
}

func (o *Object) Rotation() mathutil.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rotation
}

func (o *Object) SetScale(s mathutil.Vec3) {
	o.mu.Lock()
	o.scale = s
	o.mu.Unlock()
}

func (o *Object) Scale() mathutil.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scale
}

func (o *Object) Fill() raster.Fill {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fill
}

func (o *Object) SetFill(f raster.Fill) {
	o.mu.Lock()
	o.fill = f
	o.mu.Unlock()
}

// SetColor sets the flat color, RGBA in [0,1].
func (o *Object) SetColor(c [4]float64) {
	o.mu.Lock()
	o.color = c
	o.mu.Unlock()
}

func (o *Object) Color() [4]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.color
}

// SetTexture sets the image sampled in texture fill; nil removes it.
func (o *Object) SetTexture(name string, img *image.NRGBA) {
	o.mu.Lock()
	o.textureName, o.texture = name, img
	o.mu.Unlock()
}

func (o *Object) TextureName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.textureName
}

func (o *Object) SetSideness(s compute.Sideness) {
	o.mu.Lock()
	o.sideness = s
	o.mu.Unlock()
}

// SetVertexBlending switches the object to shading weighted by the per-vertex
// blending attributes.
func (o *Object) SetVertexBlending(on bool) {
	o.mu.Lock()
	o.vertexBlending = on
	o.mu.Unlock()
}

func (o *Object) VertexBlending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.vertexBlending
}

// SetBlendingMap hands the shared blending map to the object; nil removes it.
func (o *Object) SetBlendingMap(m *blendmap.Map) {
	o.mu.Lock()
	o.blendMap = m
	o.mu.Unlock()
}

func (o *Object) BlendingMap() *blendmap.Map {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blendMap
}

// UseAlternateBuffers switches between the tessellated and original meshes.
func (o *Object) UseAlternateBuffers(use bool) { o.geom.UseAlternate(use) }

// AddCalibrationPoint marks a world position as a calibration target of a
// linked camera. Duplicates are ignored.
func (o *Object) AddCalibrationPoint(world mathutil.Vec3) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.points {
		if p == world {
			return
		}
	}
	o.points = append(o.points, world)
}

func (o *Object) RemoveCalibrationPoint(world mathutil.Vec3) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.points {
		if p == world {
			o.points = append(o.points[:i], o.points[i+1:]...)
			return
		}
	}
}

// CalibrationPoints returns a copy of the mirrored points.
func (o *Object) CalibrationPoints() []mathutil.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mathutil.Vec3(nil), o.points...)
}

// NearestVertex returns the world position of the vertex closest to the
// world point p and its distance. ok is false for an empty geometry.
func (o *Object) NearestVertex(p mathutil.Vec3) (vertex mathutil.Vec3, dist float64, ok bool) {
	model := o.ModelMatrix()
	inv, invertible := model.Inverse()
	if !invertible {
		return vertex, 0, false
	}
	local := inv.MulPoint(p)
	m := o.geom.Active()
	i, _ := m.Nearest(local)
	if i < 0 {
		return vertex, 0, false
	}
	vertex = model.MulPoint(m.Positions[i])
	return vertex, vertex.Dist(p), true
}

// Draw rasterizes the object as seen by v. With vertex blending or a
// blending map, color and texture fills are attenuated by the share of this
// camera. Returns the number of triangles drawn.
func (o *Object) Draw(fb *raster.FrameBuffer, v View) int {
	return o.draw(fb, v, 0, false)
}

// DrawFill is Draw with f in place of the object's own fill mode, leaving
// the object untouched for concurrent renders.
func (o *Object) DrawFill(fb *raster.FrameBuffer, v View, f raster.Fill) int {
	return o.draw(fb, v, f, true)
}

func (o *Object) draw(fb *raster.FrameBuffer, v View, f raster.Fill, override bool) int {
	o.mu.Lock()
	st := raster.State{
		Fill:       o.fill,
		Color:      o.color,
		Texture:    o.texture,
		Object:     o.id,
		Brightness: v.Brightness,
	}
	vertexBlending, bm := o.vertexBlending, o.blendMap
	mvp := mathutil.Mat4Mul(v.Projection, mathutil.Mat4Mul(v.View, o.model()))
	o.mu.Unlock()
	if override {
		st.Fill = f
	}

	shaded := st.Fill == raster.FillColor || st.Fill == raster.FillTexture
	var drawn int
	o.geom.View(func(m *geometry.Mesh, annexe []geometry.Annexe) {
		var factors []float64
		switch {
		case shaded && vertexBlending:
			factors = vertexFactors(m, annexe, mvp, v.BlendWidth)
		case shaded && bm != nil && len(m.UVs) == len(m.Positions):
			factors = mapFactors(m, bm, mvp, v.BlendWidth)
		}
		if factors != nil {
			st.Fill = raster.FillBlended
		}
		drawn = raster.DrawMesh(fb, m, mvp, st, factors)
	})
	return drawn
}

func vertexFactors(m *geometry.Mesh, annexe []geometry.Annexe, mvp mathutil.Mat4, blendWidth float64) []float64 {
	factors := make([]float64, m.VertexCount())
	for i, p := range m.Positions {
		a := annexe[i]
		if a.Count == 0 || a.Blend <= 0 {
			factors[i] = 1
			continue
		}
		ndc, front := projection.ToNormalized(p, mvp)
		if !front {
			continue
		}
		factors[i] = math.Min(1, compute.Contribution(ndc[0], ndc[1], blendWidth)/a.Blend)
	}
	return factors
}

func mapFactors(m *geometry.Mesh, bm *blendmap.Map, mvp mathutil.Mat4, blendWidth float64) []float64 {
	factors := make([]float64, m.VertexCount())
	for i, p := range m.Positions {
		ndc, front := projection.ToNormalized(p, mvp)
		if !front {
			continue
		}
		own := blendmap.ScreenWeight(0.5+0.5*ndc[0], 0.5+0.5*ndc[1], blendWidth)
		uv := m.UVs[i]
		factors[i] = blendmap.Factor(bm.Lookup(uv[0], uv[1]), own)
	}
	return factors
}

// Disabled reports whether a compute phase was switched off after an error.
func (o *Object) Disabled(p compute.Phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disabled[p]
}

func (o *Object) dispatch(ctx context.Context, p compute.Phase, u compute.Uniforms) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dev == nil || o.disabled[p] {
		return
	}
	u.Model = o.model()
	u.Object = o.id
	u.Sideness = o.sideness
	err := o.dev.Dispatch(ctx, p, o.geom, u)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.log.Debug("compute phase interrupted", "phase", p, "err", err)
	default:
		o.log.Warn("compute phase failed, disabling it", "phase", p, "err", err)
		o.disabled[p] = true
	}
}

// ResetVisibility clears the visibility flag of every vertex.
func (o *Object) ResetVisibility(ctx context.Context) {
	o.dispatch(ctx, compute.ResetVisibility, compute.Uniforms{})
}

// ResetBlendingAttribute clears the accumulated contributions.
func (o *Object) ResetBlendingAttribute(ctx context.Context) {
	o.dispatch(ctx, compute.ResetBlending, compute.Uniforms{})
}

// TransferVisibility marks visible the vertices whose primitive shows in ids.
func (o *Object) TransferVisibility(ctx context.Context, ids *raster.FrameBuffer) {
	o.dispatch(ctx, compute.TransferVisibility, compute.Uniforms{IDs: ids})
}

// ComputeCameraContribution adds the contribution of a camera to the
// visible vertices.
func (o *Object) ComputeCameraContribution(ctx context.Context, view, proj mathutil.Mat4, eye mathutil.Vec3, blendWidth float64) {
	o.dispatch(ctx, compute.CameraContribution, compute.Uniforms{
		View:       view,
		Projection: proj,
		Eye:        eye,
		BlendWidth: blendWidth,
	})
}

// Tessellate subdivides the geometry near the frame edges of a camera.
func (o *Object) Tessellate(ctx context.Context, view, proj mathutil.Mat4, blendWidth, precision float64, levels int) {
	o.dispatch(ctx, compute.Tessellate, compute.Uniforms{
		View:       view,
		Projection: proj,
		BlendWidth: blendWidth,
		Precision:  precision,
		Levels:     levels,
	})
}

// ResetTessellation goes back to the original buffers.
func (o *Object) ResetTessellation() { o.geom.UseAlternate(false) }

// MarshalGeometry encodes the active buffers for replication.
func (o *Object) MarshalGeometry() ([]byte, error) { return o.geom.MarshalBinary() }

// UnmarshalGeometry installs buffers received from a peer.
func (o *Object) UnmarshalGeometry(data []byte) error { return o.geom.UnmarshalBinary(data) }
