package projection

import (
	"math"

	"projection-mapper/internal/mathutil"
)

// Frustum holds the clip planes of an asymmetric perspective frustum.
type Frustum struct {
	Left, Right float64
	Bottom, Top float64
	Near, Far   float64
}

// Viewport is x, y, width, height in pixels (OpenGL window convention, y up).
type Viewport [4]float64

// NewViewport returns the viewport covering a width×height target.
func NewViewport(width, height int) Viewport {
	return Viewport{0, 0, float64(width), float64(height)}
}

// FrustumBounds computes the frustum for a vertical field of view in degrees
// and a principal point (cx, cy) expressed as a fraction of the image. The
// principal point shifts the window by (c-0.5) times its full extent.
func FrustumBounds(fov, cx, cy, near, far float64, width, height int) Frustum {
	aspect := float64(width) / float64(height)

	tTemp := near * math.Tan(fov*math.Pi/360)
	bTemp := -tTemp
	rTemp := tTemp * aspect
	lTemp := bTemp * aspect

	return Frustum{
		Top:    tTemp - (cy-0.5)*(tTemp-bTemp),
		Bottom: bTemp - (cy-0.5)*(tTemp-bTemp),
		Right:  rTemp - (cx-0.5)*(rTemp-lTemp),
		Left:   lTemp - (cx-0.5)*(rTemp-lTemp),
		Near:   near,
		Far:    far,
	}
}

// Matrix returns the OpenGL projection matrix of the frustum.
func (f Frustum) Matrix() mathutil.Mat4 {
	return mathutil.Frustum(f.Left, f.Right, f.Bottom, f.Top, f.Near, f.Far)
}

// ProjectionMatrix is FrustumBounds followed by Matrix.
func ProjectionMatrix(fov, cx, cy, near, far float64, width, height int) mathutil.Mat4 {
	return FrustumBounds(fov, cx, cy, near, far, width, height).Matrix()
}

// ViewTarget returns the target actually used for the view matrix: when eye
// and target coincide a target is synthesized from the permuted up vector.
func ViewTarget(eye, target, up mathutil.Vec3) mathutil.Vec3 {
	if eye == target {
		return mathutil.Vec3{eye[0] + up[1], eye[1] + up[2], eye[2] + up[0]}
	}
	return target
}

// ViewMatrix builds the look-at matrix for a camera.
func ViewMatrix(eye, target, up mathutil.Vec3) mathutil.Mat4 {
	return mathutil.LookAt(eye, ViewTarget(eye, target, up), up)
}

// Project maps a world point to window coordinates: x, y in pixels inside the
// viewport (y up) and z the depth in [0,1] for points inside the frustum.
func Project(p mathutil.Vec3, view, proj mathutil.Mat4, vp Viewport) mathutil.Vec3 {
	return ProjectMVP(p, mathutil.Mat4Mul(proj, view), vp)
}

// ProjectMVP is Project with a precomputed proj·view product.
func ProjectMVP(p mathutil.Vec3, mvp mathutil.Mat4, vp Viewport) mathutil.Vec3 {
	clip := mvp.MulVec4(mathutil.Vec4{p[0], p[1], p[2], 1})
	ndc := mathutil.Vec3{clip[0] / clip[3], clip[1] / clip[3], clip[2] / clip[3]}
	return mathutil.Vec3{
		(ndc[0]*0.5+0.5)*vp[2] + vp[0],
		(ndc[1]*0.5+0.5)*vp[3] + vp[1],
		ndc[2]*0.5 + 0.5,
	}
}

// UnProject is the inverse of Project. It fails when proj·view is singular.
func UnProject(win mathutil.Vec3, view, proj mathutil.Mat4, vp Viewport) (mathutil.Vec3, bool) {
	inv, ok := mathutil.Mat4Mul(proj, view).Inverse()
	if !ok {
		return mathutil.Vec3{}, false
	}
	in := mathutil.Vec4{
		(win[0]-vp[0])/vp[2]*2 - 1,
		(win[1]-vp[1])/vp[3]*2 - 1,
		win[2]*2 - 1,
		1,
	}
	obj := inv.MulVec4(in)
	if obj[3] == 0 {
		return mathutil.Vec3{}, false
	}
	return mathutil.Vec3{obj[0] / obj[3], obj[1] / obj[3], obj[2] / obj[3]}, true
}

// ToNormalized returns the normalized device coordinates of p under mvp and
// whether p lies in front of the camera.
func ToNormalized(p mathutil.Vec3, mvp mathutil.Mat4) (mathutil.Vec3, bool) {
	clip := mvp.MulVec4(mathutil.Vec4{p[0], p[1], p[2], 1})
	if clip[3] <= 0 {
		return mathutil.Vec3{}, false
	}
	return mathutil.Vec3{clip[0] / clip[3], clip[1] / clip[3], clip[2] / clip[3]}, true
}

// NormalizedToPixel converts a normalized screen point ([-1,1], y up) to
// raster coordinates (origin top-left, y down).
func NormalizedToPixel(s mathutil.Vec2, width, height int) (float64, float64) {
	return (s[0]*0.5 + 0.5) * float64(width), (0.5 - s[1]*0.5) * float64(height)
}

// PixelToNormalized is the inverse of NormalizedToPixel.
func PixelToNormalized(x, y float64, width, height int) mathutil.Vec2 {
	return mathutil.Vec2{x/float64(width)*2 - 1, 1 - y/float64(height)*2}
}

// ProjectVertices transforms world positions to raster space.
// Returns px, py (pixels, y down), pz (window depth) and iw (1/w, zero for
// vertices behind the camera).
func ProjectVertices(positions []mathutil.Vec3, mvp mathutil.Mat4, width, height int) (px, py, pz, iw []float64) {
	n := len(positions)
	px = make([]float64, n)
	py = make([]float64, n)
	pz = make([]float64, n)
	iw = make([]float64, n)

	w, h := float64(width), float64(height)
	for i, p := range positions {
		clip := mvp.MulVec4(mathutil.Vec4{p[0], p[1], p[2], 1})
		if clip[3] <= 1e-9 {
			continue
		}
		inv := 1 / clip[3]
		px[i] = (clip[0]*inv*0.5 + 0.5) * w
		py[i] = (0.5 - clip[1]*inv*0.5) * h
		pz[i] = clip[2]*inv*0.5 + 0.5
		iw[i] = inv
	}
	return px, py, pz, iw
}
