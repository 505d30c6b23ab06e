// Package compute runs the per-vertex blending kernels on a geometry: the
// visibility and blending resets, the transfer of a primitive-id render
// into vertex visibility, the contribution of a camera to every visible
// vertex and the camera-driven tessellation.
package compute

import (
	"context"
	"errors"
	"fmt"
	"math"

	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/raster"
)

var (
	ErrUnknownPhase = errors.New("compute: unknown phase")
	ErrNoIDBuffer   = errors.New("compute: transfer needs a primitive id buffer")
)

// Phase names a kernel.
type Phase int

const (
	ResetVisibility Phase = iota
	ResetBlending
	TransferVisibility
	CameraContribution
	Tessellate
)

var phaseNames = [...]string{
	"resetVisibility",
	"resetBlending",
	"transferVisibilityToAttr",
	"computeCameraContribution",
	"tessellateFromCamera",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Sideness selects which faces receive a contribution.
type Sideness int

const (
	BothSides Sideness = iota
	FrontOnly          // normal facing the eye
	BackOnly
)

// Uniforms are the parameters of a dispatch. Positions are in object space;
// Model brings them to the world, View and Projection are the camera's.
type Uniforms struct {
	Model      mathutil.Mat4
	View       mathutil.Mat4
	Projection mathutil.Mat4
	Eye        mathutil.Vec3 // world space

	BlendWidth float64
	Precision  float64 // largest screen edge kept by the tessellation, in [0,1] units
	Levels     int     // tessellation passes

	Sideness Sideness

	// Transfer reads the primitive plane of IDs for pixels tagged Object.
	IDs    *raster.FrameBuffer
	Object uint32
}

// MVP returns Projection·View·Model.
func (u Uniforms) MVP() mathutil.Mat4 {
	return mathutil.Mat4Mul(u.Projection, mathutil.Mat4Mul(u.View, u.Model))
}

// Device executes kernels. Implementations must leave g untouched when they
// return an error before writing.
type Device interface {
	Dispatch(ctx context.Context, phase Phase, g *geometry.Geometry, u Uniforms) error
}

// Contribution is the weight of a camera for a point at normalized device
// coordinates (x, y): the harmonic mean of the distances to the nearest
// vertical and horizontal frame edges, each divided by blendWidth and
// clamped to [0,1], then squared. Points outside the frame weigh 0, and a
// zero blend width gives 1 everywhere inside.
func Contribution(x, y, blendWidth float64) float64 {
	if x < -1 || x > 1 || y < -1 || y > 1 {
		return 0
	}
	if blendWidth <= 0 {
		return 1
	}
	sx, sy := 0.5+0.5*x, 0.5+0.5*y
	dx := clamp01(math.Min(sx, 1-sx) / blendWidth)
	dy := clamp01(math.Min(sy, 1-sy) / blendWidth)
	if dx == 0 || dy == 0 {
		return 0
	}
	w := clamp01(2 / (1/dx + 1/dy))
	return w * w
}

// Facing reports whether a vertex with world position p and normal n is
// accepted under s as seen from eye.
func Facing(s Sideness, p, n, eye mathutil.Vec3) bool {
	switch s {
	case FrontOnly:
		return n.Dot(eye.Sub(p)) > 0
	case BackOnly:
		return n.Dot(eye.Sub(p)) < 0
	}
	return true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
